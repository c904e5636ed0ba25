package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/results"
	"github.com/spigell/cv-screener/internal/scoring"
	"github.com/spigell/cv-screener/internal/taxonomy"
)

func TestPickRecord(t *testing.T) {
	t.Parallel()

	single := &candidate.Pool{Items: []*candidate.Record{{ID: "a"}}}
	many := &candidate.Pool{Items: []*candidate.Record{{ID: "a"}, {ID: "b"}}}

	r, err := pickRecord(single, "")
	require.NoError(t, err)
	assert.Equal(t, "a", r.ID)

	r, err = pickRecord(many, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", r.ID)

	_, err = pickRecord(many, "")
	assert.ErrorContains(t, err, "choose one with --id")

	_, err = pickRecord(many, "z")
	assert.Error(t, err)

	_, err = pickRecord(&candidate.Pool{}, "")
	assert.Error(t, err)
}

func TestNewCollaborators(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	ctx := context.Background()
	log := zap.NewNop()

	none, err := newCollaborators(ctx, &AIConfig{Provider: "None"}, log)
	require.NoError(t, err)
	assert.Nil(t, none.embedder)
	assert.Nil(t, none.delegate)

	none, err = newCollaborators(ctx, nil, log)
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderNone, none.provider)

	local, err := newCollaborators(ctx, &AIConfig{Provider: "lmstudio", LMStudio: &LMStudioConfig{Model: "qwen"}}, log)
	require.NoError(t, err)
	assert.NotNil(t, local.embedder)
	assert.NotNil(t, local.delegate)
	assert.Equal(t, "qwen", local.model)

	_, err = newCollaborators(ctx, &AIConfig{Provider: "gemini"}, log)
	assert.ErrorContains(t, err, "GEMINI_API_KEY_FILE")

	_, err = newCollaborators(ctx, &AIConfig{Provider: "openai"}, log)
	assert.ErrorContains(t, err, "unsupported ai provider")
}

func TestAppendToExcludeFileCreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "exclude.json")
	pool := &candidate.Pool{Items: []*candidate.Record{{ID: "1"}, {ID: "2"}}}

	require.NoError(t, appendToExcludeFile(path, pool))
	require.NoError(t, appendToExcludeFile(path, &candidate.Pool{Items: []*candidate.Record{{ID: "2"}, {ID: "3"}}}))

	excluded, err := candidate.LoadExcluded(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, excluded.IDs())
	assert.Equal(t, excludeReason, excluded.Items[0].Reason)
}

func TestScorePoolStoresEveryResult(t *testing.T) {
	t.Parallel()

	req, err := requirement.New(requirement.JobRequirement{Title: "AI Engineer", EmbeddingText: "LLM engineer"})
	require.NoError(t, err)
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	pipeline, err := scoring.NewPipeline(req, tax, nil, nil, scoring.Options{}, nil)
	require.NoError(t, err)

	store, err := results.NewStore(t.TempDir())
	require.NoError(t, err)

	pool := &candidate.Pool{Items: []*candidate.Record{
		{ID: "a", Name: "Ada", SkillTags: []string{"vLLM"}},
		{ID: "b", Name: "Bob"},
		{ID: "c", Name: "Cy", WorkExperiences: []candidate.WorkExperience{{JobDescription: "Built RAG with LangChain"}}},
	}}

	breakdowns, err := scorePool(context.Background(), pipeline, store, pool, "run-1", 2, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, breakdowns, 3)
	for i, b := range breakdowns {
		assert.Equal(t, pool.Items[i].ID, b.CandidateID)
	}

	ids, err := store.ScoredIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	env, err := store.Load("c")
	require.NoError(t, err)
	assert.Equal(t, "run-1", env.RunID)
	assert.Equal(t, "AI Engineer", env.Requirement)
}

func TestRenderReview(t *testing.T) {
	t.Parallel()

	b := &scoring.ScoreBreakdown{
		CandidateID:  "a",
		AnalysisText: "### Ada assessment",
		Strengths:    []string{"Tier 4 inference work"},
		Gaps:         nil,
	}

	out := renderReview(b)
	assert.True(t, strings.HasPrefix(out, "### Ada assessment"))
	assert.Contains(t, out, "**Strengths**\n- Tier 4 inference work")
	assert.NotContains(t, out, "**Gaps**")

	assert.Equal(t, "2. a - / 0.0 [hard filter failed]", reviewLabel(2, b))
}
