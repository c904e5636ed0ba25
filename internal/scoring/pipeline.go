package scoring

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
)

const (
	warnSemantic   = "embedding unavailable: semantic similarity scored 0"
	warnTier       = "text generation unavailable: tier classified from keywords only"
	warnThesis     = "embedding unavailable: thesis relevance decided by keywords"
	defaultTimeout = 30 * time.Second
)

type Options struct {
	EmbeddingTimeout    time.Duration `mapstructure:"embedding-timeout"`
	GenerationTimeout   time.Duration `mapstructure:"generation-timeout"`
	ComplexityMinLength int           `mapstructure:"complexity-min-length"`
	TierMinLength       int           `mapstructure:"tier-min-length"`
}

// Pipeline scores candidates against one job requirement. It holds no
// per-candidate state and is safe for concurrent use.
type Pipeline struct {
	req        *requirement.JobRequirement
	tax        *taxonomy.Taxonomy
	semantic   *SemanticMatcher
	experience *ExperienceClassifier
	education  *EducationScorer
	logger     *zap.Logger
}

// NewPipeline wires the scorers. embedder and delegate may be nil; the
// affected dimensions then take their degraded paths.
func NewPipeline(req *requirement.JobRequirement, tax *taxonomy.Taxonomy, embedder ai.Embedder, delegate Delegate, opts Options, log *zap.Logger) (*Pipeline, error) {
	if req == nil {
		return nil, errors.New("job requirement is required")
	}
	if tax == nil {
		return nil, errors.New("taxonomy is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.EmbeddingTimeout <= 0 {
		opts.EmbeddingTimeout = defaultTimeout
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaultTimeout
	}

	matcher := NewKeywordMatcher(tax, req)

	return &Pipeline{
		req:      req,
		tax:      tax,
		semantic: NewSemanticMatcher(embedder, opts.EmbeddingTimeout),
		experience: NewExperienceClassifier(tax, matcher, delegate, ExperienceOptions{
			ComplexityMinLength: opts.ComplexityMinLength,
			TierMinLength:       opts.TierMinLength,
			CallTimeout:         opts.GenerationTimeout,
		}, log),
		education: NewEducationScorer(tax, embedder, opts.EmbeddingTimeout, log),
		logger:    log,
	}, nil
}

// Score runs every scorer for record and composes the breakdown. Only a nil
// record is an error; collaborator failures degrade the affected dimension
// and are listed in Warnings.
func (p *Pipeline) Score(ctx context.Context, record *candidate.Record) (*ScoreBreakdown, error) {
	if record == nil {
		return nil, ErrNilRecord
	}

	log := p.logger.With(logger.CandidateFields(record.ID, record.Name)...)
	log.Debug("scoring candidate")

	passed, failures := EvaluateHardFilter(record, p.req, p.tax)
	if !passed {
		log.Info("hard filter failed", zap.Strings("failures", failures))
	}

	var (
		g   errgroup.Group
		sim float64
		exp ExperienceDetail
		edu EducationDetail
		eng EngineeringDetail
		skl SkillDetail

		semErr, expErr, eduErr error
	)

	g.Go(func() error {
		sim, semErr = p.semantic.Similarity(ctx, CandidateText(record), p.req.EmbeddingText)
		return nil
	})
	g.Go(func() error {
		exp, expErr = p.experience.Classify(ctx, record.WorkExperiences, record.SkillTags)
		return nil
	})
	g.Go(func() error {
		edu, eduErr = p.education.Evaluate(ctx, record.Education)
		return nil
	})
	g.Go(func() error {
		eng = EvaluateEngineering(p.tax, record.FreeText())
		skl = EvaluateSkills(p.tax, p.req, record.SkillTags, record.WorkExperiences)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{semErr, expErr, eduErr} {
		var collab *CollaboratorError
		if errors.As(err, &collab) {
			log.Warn("collaborator unavailable", zap.String(logger.FieldService, collab.Service), zap.Error(collab.Err))
		}
	}

	b := &ScoreBreakdown{
		CandidateID:        record.ID,
		CandidateName:      record.Name,
		Weights:            p.req.Weights(),
		PassedHardFilter:   passed,
		HardFilterFailures: failures,
		SemanticSimilarity: round2(sim),
		Experience:         exp,
		Engineering:        eng,
		Education:          edu,
		Skills:             skl,
	}
	if b.HardFilterFailures == nil {
		b.HardFilterFailures = []string{}
	}

	if semErr != nil {
		b.Warnings = append(b.Warnings, warnSemantic)
		sim = 0
	}
	if exp.KeywordOnly {
		b.Warnings = append(b.Warnings, warnTier)
	}
	if edu.KeywordFallback {
		b.Warnings = append(b.Warnings, warnThesis)
	}

	b.SAI = p.checkRange(log, requirement.AIExperience, exp.Score)
	b.SEng = p.checkRange(log, requirement.Engineering, eng.Score)
	b.SSemantic = p.checkRange(log, requirement.Semantic, clamp(sim, 0, 1)*100)
	b.SEdu = p.checkRange(log, requirement.Education, edu.Score)
	b.SSkill = p.checkRange(log, requirement.Skills, skl.Score)

	b.OverallScore = round1(clamp(WeightedSum(b.Weights, b), 0, 100))

	b.Tags = buildTags(p.tax, b)
	b.Strengths, b.Gaps, b.InterviewSuggestions = assess(p.tax, b)
	b.AnalysisText = renderAnalysis(record, b)

	log.Info("candidate scored",
		zap.Float64("overall", b.OverallScore),
		zap.Int("tier", exp.Tier),
		zap.Bool("passed_hard_filter", passed),
		zap.Int("warnings", len(b.Warnings)),
	)

	return b, nil
}

// Requirement returns the job requirement the pipeline scores against.
func (p *Pipeline) Requirement() *requirement.JobRequirement {
	return p.req
}

// checkRange clamps a sub-score into [0,100]. Any correction points at a
// broken scorer or taxonomy and is logged as an error.
func (p *Pipeline) checkRange(log *zap.Logger, dimension string, v float64) float64 {
	if math.IsNaN(v) {
		log.Error("sub-score out of range", zap.String("dimension", dimension), zap.String("value", "NaN"))
		return 0
	}
	if v < 0 || v > 100 {
		log.Error("sub-score out of range", zap.String("dimension", dimension), zap.Float64("value", v))
		v = clamp(v, 0, 100)
	}
	return round2(v)
}

// WeightedSum combines the sub-scores of b with w, without rounding.
func WeightedSum(w requirement.Weights, b *ScoreBreakdown) float64 {
	return w.AIExperience*b.SAI +
		w.Engineering*b.SEng +
		w.Semantic*b.SSemantic +
		w.Education*b.SEdu +
		w.Skills*b.SSkill
}

// Rank returns the breakdowns ordered best first: overall score, then hard
// filter pass, then AI experience, then candidate id.
func Rank(breakdowns []*ScoreBreakdown) []*ScoreBreakdown {
	ranked := make([]*ScoreBreakdown, 0, len(breakdowns))
	for _, b := range breakdowns {
		if b != nil {
			ranked = append(ranked, b)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case a.OverallScore != b.OverallScore:
			return a.OverallScore > b.OverallScore
		case a.PassedHardFilter != b.PassedHardFilter:
			return a.PassedHardFilter
		case a.SAI != b.SAI:
			return a.SAI > b.SAI
		default:
			return a.CandidateID < b.CandidateID
		}
	})

	return ranked
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
