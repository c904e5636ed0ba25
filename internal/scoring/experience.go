package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	metricCredit     = 0.25
	maxFlagRunes     = 120
	keywordOnlyNote  = "tier classified from keywords only (text generation unavailable)"
	defaultMinLength = 200
)

var sentenceSplit = regexp.MustCompile(`(?:[;!?。；！？\n]|\.(?:\s|$))+`)

// Delegate is the text-generation collaborator as the scorers see it. Both
// answers are expected to be clamped by the implementation.
type Delegate interface {
	Complexity(ctx context.Context, experience string) (float64, error)
	Tier(ctx context.Context, experience string) (int, error)
}

type ExperienceDetail struct {
	Tier            int          `json:"tier"`
	TierLabel       string       `json:"tier_label"`
	Score           float64      `json:"score"`
	Evidence        []string     `json:"evidence"`
	Keywords        []KeywordHit `json:"keywords,omitempty"`
	TechStackScore  float64      `json:"tech_stack_score"`
	ComplexityScore float64      `json:"complexity_score"`
	MetricScore     float64      `json:"metric_score"`
	MetricFlags     []string     `json:"metric_flags,omitempty"`
	KeywordOnly     bool         `json:"keyword_only"`
}

type ExperienceOptions struct {
	// ComplexityMinLength is the description length, in runes, above which
	// an experience without scale keywords is sent for a complexity judgment.
	ComplexityMinLength int
	// TierMinLength is the description length above which an experience
	// without tier signals is sent for a tier judgment.
	TierMinLength int
	CallTimeout   time.Duration
}

// ExperienceClassifier places a candidate on the four-tier AI pyramid.
type ExperienceClassifier struct {
	tax      *taxonomy.Taxonomy
	matcher  *KeywordMatcher
	delegate Delegate
	opts     ExperienceOptions
	logger   *zap.Logger
}

func NewExperienceClassifier(tax *taxonomy.Taxonomy, matcher *KeywordMatcher, delegate Delegate, opts ExperienceOptions, logger *zap.Logger) *ExperienceClassifier {
	if opts.ComplexityMinLength <= 0 {
		opts.ComplexityMinLength = defaultMinLength
	}
	if opts.TierMinLength <= 0 {
		opts.TierMinLength = defaultMinLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperienceClassifier{tax: tax, matcher: matcher, delegate: delegate, opts: opts, logger: logger}
}

// Classify evaluates each experience on its own and keeps the highest tier
// that has at least one signal. Tags only feed the stack score. The detail
// is always complete; a non-nil error is a *CollaboratorError describing a
// delegation that failed and was replaced by the keyword path.
func (c *ExperienceClassifier) Classify(ctx context.Context, experiences []candidate.WorkExperience, tags []string) (ExperienceDetail, error) {
	var (
		detail      ExperienceDetail
		collabErr   error
		delegateOK  = c.delegate != nil
		needsJudge  bool
		bestTier    int
		judgedNotes []string
	)

	for _, exp := range experiences {
		text := exp.Text()
		if text == "" {
			continue
		}
		long := func(n int) bool { return utf8.RuneCountInString(exp.JobDescription) > n }

		tier := HighestTier(c.matcher.Match(text))
		if tier == 0 && long(c.opts.TierMinLength) {
			needsJudge = true
			if delegateOK {
				judged, err := c.judgeTier(ctx, text)
				if err != nil {
					collabErr, delegateOK = err, false
				} else {
					tier = judged
					judgedNotes = append(judgedNotes, fmt.Sprintf("[LLM] tier %d judged for %s", judged, describe(exp)))
				}
			}
		}
		if tier > bestTier {
			bestTier = tier
		}

		complexity := scaleComplexity(c.tax.Complexity, text)
		if complexity == 0 && long(c.opts.ComplexityMinLength) {
			needsJudge = true
			if delegateOK {
				judged, err := c.judgeComplexity(ctx, text)
				if err != nil {
					collabErr, delegateOK = err, false
				} else {
					complexity = judged
				}
			}
		}
		if complexity > detail.ComplexityScore {
			detail.ComplexityScore = complexity
		}
	}

	if bestTier < 1 {
		bestTier = 1
	}
	tier, _ := c.tax.Tier(bestTier)
	detail.Tier = bestTier
	detail.TierLabel = tier.Label
	detail.Score = tier.Score

	narrative := make([]string, 0, len(experiences))
	for _, exp := range experiences {
		narrative = append(narrative, exp.Text())
	}
	hits := c.matcher.MatchWithTags(textmatch.Join(narrative...), textmatch.Join(tags...))
	detail.Keywords = hits
	detail.TechStackScore = round2(c.matcher.StackScore(hits))
	for _, h := range hits {
		if len(detail.Evidence) == maxEvidence {
			break
		}
		detail.Evidence = append(detail.Evidence, evidenceLine(h))
	}
	detail.Evidence = append(detail.Evidence, judgedNotes...)

	detail.ComplexityScore = round2(detail.ComplexityScore)
	detail.MetricScore, detail.MetricFlags = evaluateMetrics(c.tax.Metrics, experiences)

	if needsJudge && (collabErr != nil || c.delegate == nil) {
		detail.KeywordOnly = true
		detail.Evidence = append(detail.Evidence, keywordOnlyNote)
	}
	if detail.Evidence == nil {
		detail.Evidence = []string{}
	}

	return detail, collabErr
}

func (c *ExperienceClassifier) judgeTier(ctx context.Context, text string) (int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tier, err := c.delegate.Tier(ctx, text)
	if err != nil {
		c.logger.Warn("tier judgment unavailable, using keywords only", zap.Error(err))
		return 0, &CollaboratorError{Service: ServiceTextGeneration, Err: err}
	}
	if tier < 1 || tier > 4 {
		c.logger.Error("tier judgment out of range", zap.Int("tier", tier))
		tier = max(1, min(tier, 4))
	}
	return tier, nil
}

func (c *ExperienceClassifier) judgeComplexity(ctx context.Context, text string) (float64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	v, err := c.delegate.Complexity(ctx, text)
	if err != nil {
		c.logger.Warn("complexity judgment unavailable, using keywords only", zap.Error(err))
		return 0, &CollaboratorError{Service: ServiceTextGeneration, Err: err}
	}
	return clamp(v, 0, 1), nil
}

func (c *ExperienceClassifier) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func scaleComplexity(rules taxonomy.ComplexityRules, text string) float64 {
	var v float64
	if textmatch.AnyPattern(rules.DataScale, text) {
		v += 0.33
	}
	if textmatch.AnyPattern(rules.Architecture, text) {
		v += 0.33
	}
	if textmatch.AnyPattern(rules.ModelScale, text) {
		v += 0.34
	}
	return v
}

// evaluateMetrics credits sentences that pair a number with a metric that
// fits the domain. Accuracy claims about generative work and vague
// improvement language are flagged and earn nothing.
func evaluateMetrics(rules taxonomy.MetricRules, experiences []candidate.WorkExperience) (float64, []string) {
	var (
		credible int
		flags    []string
	)

	for _, exp := range experiences {
		desc := strings.TrimSpace(exp.JobDescription)
		if desc == "" {
			continue
		}
		generative := rules.Generative.Any(textmatch.Join(exp.JobTitle, desc))

		for _, sentence := range sentenceSplit.Split(desc, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}

			numeric := textmatch.AnyPattern(rules.Numeric, sentence)
			// A vanity claim is not redeemed by a domain word in the same sentence.
			switch {
			case numeric && generative && rules.Vanity.Any(sentence):
				flags = append(flags, "[Vanity] accuracy claim on a generative task: "+utils.TruncateForLog(sentence, maxFlagRunes))
			case numeric && rules.Domain.Any(sentence):
				credible++
			case !numeric && textmatch.AnyPattern(rules.Vague, sentence):
				flags = append(flags, "[Vanity] unquantified improvement: "+utils.TruncateForLog(sentence, maxFlagRunes))
			}
		}
	}

	return round2(min(float64(credible)*metricCredit, 1)), flags
}

func describe(exp candidate.WorkExperience) string {
	switch {
	case exp.JobTitle != "" && exp.CompanyName != "":
		return exp.JobTitle + " at " + exp.CompanyName
	case exp.JobTitle != "":
		return exp.JobTitle
	case exp.CompanyName != "":
		return exp.CompanyName
	}
	return "an untitled experience"
}
