package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/requirement"
)

// tunerCandidate is a Tier 3 profile from a top school with no engineering
// signal at all.
func tunerCandidate() *candidate.Record {
	return &candidate.Record{
		ID:        "tuner",
		Name:      "Alex Tuner",
		SkillTags: []string{"LangChain"},
		WorkExperiences: []candidate.WorkExperience{{
			JobTitle:       "Research Engineer",
			JobDescription: "Fine-tuned Llama models with LoRA and built RAG agents with LangChain.",
			DateStart:      "2022-01",
		}},
		Education: []candidate.EducationEntry{csMasterWithThesis},
	}
}

// builderCandidate is a Tier 2 profile with full engineering maturity.
func builderCandidate() *candidate.Record {
	return &candidate.Record{
		ID:        "builder",
		Name:      "Sam Builder",
		SkillTags: []string{"LangChain"},
		WorkExperiences: []candidate.WorkExperience{{
			JobTitle:       "Software Engineer",
			JobDescription: "Built a RAG service with FastAPI and LangChain on Kubernetes, stored vectors in Milvus and shipped a React UI.",
			DateStart:      "2021-06",
		}},
		Education: []candidate.EducationEntry{{
			School:      "National Taiwan University of Science and Technology",
			Department:  "Physics",
			DegreeLevel: "Bachelor",
		}},
	}
}

func workedExampleEmbedder(req *requirement.JobRequirement) *stubEmbedder {
	return &stubEmbedder{
		fallback: []float32{1, 0},
		vectors: map[string][]float32{
			req.EmbeddingText:                 {1, 0},
			CandidateText(tunerCandidate()):   {0.7, float32(math.Sqrt(0.51))},
			CandidateText(builderCandidate()): {0.8, 0.6},
		},
	}
}

func newPipeline(t *testing.T, req *requirement.JobRequirement, emb ai.Embedder, delegate Delegate, opts Options, log *zap.Logger) *Pipeline {
	t.Helper()
	p, err := NewPipeline(req, defaultTaxonomy(t), emb, delegate, opts, log)
	require.NoError(t, err)
	return p
}

func TestWeightedSumWorkedExamples(t *testing.T) {
	t.Parallel()

	w := requirement.DefaultWeights()
	first := &ScoreBreakdown{CandidateID: "a", SAI: 90, SEng: 0, SSemantic: 70, SEdu: 100, SSkill: 90}
	second := &ScoreBreakdown{CandidateID: "b", SAI: 80, SEng: 100, SSemantic: 80, SEdu: 65, SSkill: 90}

	assert.InDelta(t, 69.5, WeightedSum(w, first), 1e-9)
	assert.InDelta(t, 82.75, WeightedSum(w, second), 1e-9)
}

func TestPipelineWorkedExamples(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{})
	p := newPipeline(t, req, workedExampleEmbedder(req), nil, Options{}, nil)

	first, err := p.Score(context.Background(), tunerCandidate())
	require.NoError(t, err)
	second, err := p.Score(context.Background(), builderCandidate())
	require.NoError(t, err)

	assert.Equal(t, []float64{90, 0, 70, 100, 90}, []float64{first.SAI, first.SEng, first.SSemantic, first.SEdu, first.SSkill})
	assert.Equal(t, []float64{80, 100, 80, 65, 90}, []float64{second.SAI, second.SEng, second.SSemantic, second.SEdu, second.SSkill})

	assert.InDelta(t, 69.5, first.OverallScore, 0.05+1e-9)
	assert.InDelta(t, 82.75, second.OverallScore, 0.05+1e-9)
	assert.Empty(t, first.Warnings)
	assert.Empty(t, second.Warnings)

	ranked := Rank([]*ScoreBreakdown{first, second})
	assert.Equal(t, "builder", ranked[0].CandidateID)

	assert.Equal(t, []string{"#DevOps", "#Full-Stack", "#LLM-Framework", "#LLM-Stack", "#RAG", "#RAG-Expert", "#Vector-DB"}, second.Tags)
	assert.Contains(t, first.Tags, "#Model-Tuner")
	assert.Contains(t, first.Strengths, "AI thesis with a top-venue publication")
	assert.Contains(t, first.AnalysisText, "**Overall: 69.5/100**")
	assert.Contains(t, first.AnalysisText, "- AI experience (35%): 31.5")
	assert.NotContains(t, first.AnalysisText, "Degraded confidence")
}

func TestPipelineIsIdempotent(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{MustHaveSkills: []string{"Python"}})
	p := newPipeline(t, req, workedExampleEmbedder(req), &stubDelegate{tier: 2, complexity: 0.4}, Options{}, nil)

	record := tunerCandidate()
	record.WorkExperiences = append(record.WorkExperiences, candidate.WorkExperience{JobDescription: plainDuties})

	var encoded [][]byte
	for i := 0; i < 3; i++ {
		b, err := p.Score(context.Background(), record)
		require.NoError(t, err)
		data, err := json.Marshal(b)
		require.NoError(t, err)
		encoded = append(encoded, data)
	}

	assert.Equal(t, string(encoded[0]), string(encoded[1]))
	assert.Equal(t, string(encoded[0]), string(encoded[2]))
}

func TestPipelineSemanticTimeout(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	req := newRequirement(t, requirement.JobRequirement{})
	p := newPipeline(t, req, blockingEmbedder{}, nil, Options{EmbeddingTimeout: 20 * time.Millisecond}, zap.New(core))

	b, err := p.Score(context.Background(), tunerCandidate())
	require.NoError(t, err)

	assert.Zero(t, b.SSemantic)
	assert.Zero(t, b.SemanticSimilarity)
	assert.Equal(t, []string{warnSemantic, warnThesis}, b.Warnings)
	assert.Equal(t, 100.0, b.SEdu, "thesis bonus falls back to keywords")
	assert.Equal(t, 90.0, b.SAI)
	assert.Contains(t, b.AnalysisText, "Degraded confidence")

	entries := logs.FilterMessage("collaborator unavailable").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, ServiceEmbedding, entries[0].ContextMap()[logger.FieldService])
	assert.Equal(t, "tuner", entries[0].ContextMap()[logger.FieldCandidate])
}

func TestPipelineDegradesWithoutCollaborators(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{})
	p := newPipeline(t, req, nil, nil, Options{}, nil)

	record := builderCandidate()
	record.WorkExperiences = append(record.WorkExperiences, candidate.WorkExperience{JobDescription: plainDuties})

	b, err := p.Score(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, []string{warnSemantic, warnTier}, b.Warnings)
	assert.True(t, b.Experience.KeywordOnly)
	assert.Equal(t, 80.0, b.SAI)
	assert.InDelta(t, WeightedSum(b.Weights, b), b.OverallScore, 0.05+1e-9)
}

func TestPipelineHardFilterFailureStillScores(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{MustHaveSkills: []string{"Rust", "CUDA|Triton"}})
	p := newPipeline(t, req, workedExampleEmbedder(req), nil, Options{}, nil)

	b, err := p.Score(context.Background(), builderCandidate())
	require.NoError(t, err)

	assert.False(t, b.PassedHardFilter)
	assert.Len(t, b.HardFilterFailures, 2)
	assert.Contains(t, b.Tags, "#Hard-Filter-Failed")
	assert.Greater(t, b.OverallScore, 0.0)
	assert.True(t, strings.HasPrefix(b.Gaps[0], "Fails the must-have requirements"))
}

func TestPipelineRejectsNilRecord(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, newRequirement(t, requirement.JobRequirement{}), nil, nil, Options{}, nil)
	_, err := p.Score(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNilRecord))
}

func TestNewPipelineRequiresInputs(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)
	_, err := NewPipeline(nil, tax, nil, nil, Options{}, nil)
	assert.Error(t, err)
	_, err = NewPipeline(newRequirement(t, requirement.JobRequirement{}), nil, nil, nil, Options{}, nil)
	assert.Error(t, err)
}

func TestPipelineCustomWeights(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{DimensionWeights: map[string]float64{
		"ai_experience": 1, "engineering": 0, "semantic": 0, "education": 0, "skills": 0,
	}})
	p := newPipeline(t, req, nil, nil, Options{}, nil)

	b, err := p.Score(context.Background(), tunerCandidate())
	require.NoError(t, err)
	assert.Equal(t, 90.0, b.OverallScore)
}

func TestCheckRangeLogsInconsistencies(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	p := newPipeline(t, newRequirement(t, requirement.JobRequirement{}), nil, nil, Options{}, nil)
	log := zap.New(core)

	assert.Equal(t, 100.0, p.checkRange(log, requirement.Skills, 120))
	assert.Equal(t, 0.0, p.checkRange(log, requirement.Skills, -3))
	assert.Equal(t, 0.0, p.checkRange(log, requirement.Skills, math.NaN()))
	assert.Equal(t, 42.12, p.checkRange(log, requirement.Skills, 42.123))

	assert.Equal(t, 3, logs.FilterMessage("sub-score out of range").Len())
}

func TestRank(t *testing.T) {
	t.Parallel()

	in := []*ScoreBreakdown{
		{CandidateID: "d", OverallScore: 70, PassedHardFilter: true, SAI: 60},
		{CandidateID: "c", OverallScore: 70, PassedHardFilter: false, SAI: 100},
		{CandidateID: "b", OverallScore: 70, PassedHardFilter: true, SAI: 90},
		{CandidateID: "a", OverallScore: 70, PassedHardFilter: true, SAI: 90},
		nil,
		{CandidateID: "e", OverallScore: 85},
	}

	ranked := Rank(in)
	ids := make([]string, 0, len(ranked))
	for _, b := range ranked {
		ids = append(ids, b.CandidateID)
	}

	assert.Equal(t, []string{"e", "a", "b", "d", "c"}, ids)
	assert.Equal(t, "d", in[0].CandidateID, "input must not be reordered")
}
