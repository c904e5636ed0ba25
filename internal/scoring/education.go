package scoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
)

const (
	degreeBachelor = "bachelor"

	schoolWeight = 0.5
	degreeWeight = 0.3
	majorWeight  = 0.2
)

// EducationEntryScore is the breakdown of one education entry.
type EducationEntryScore struct {
	School       string  `json:"school,omitempty"`
	SchoolTier   string  `json:"school_tier"`
	SchoolPoints float64 `json:"school_points"`
	Degree       string  `json:"degree"`
	DegreePoints float64 `json:"degree_points"`
	Major        string  `json:"major,omitempty"`
	MajorTier    string  `json:"major_tier"`
	MajorPoints  float64 `json:"major_points"`
	ThesisBonus  float64 `json:"thesis_bonus"`
	Score        float64 `json:"score"`
}

type EducationDetail struct {
	Score   float64               `json:"score"`
	Best    *EducationEntryScore  `json:"best,omitempty"`
	Entries []EducationEntryScore `json:"entries,omitempty"`
	// KeywordFallback is set when thesis relevance was decided by keywords
	// because embeddings were unavailable.
	KeywordFallback bool `json:"keyword_fallback,omitempty"`
}

// EducationScorer grades school tier, degree level and major relevance.
// Thesis category vectors are embedded once and reused.
type EducationScorer struct {
	rules    taxonomy.EducationRules
	embedder ai.Embedder
	timeout  time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	categories [][]float32
}

func NewEducationScorer(tax *taxonomy.Taxonomy, embedder ai.Embedder, timeout time.Duration, logger *zap.Logger) *EducationScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EducationScorer{rules: tax.Education, embedder: embedder, timeout: timeout, logger: logger}
}

// Evaluate scores every usable entry and keeps the best one. The detail is
// complete even when the returned error, always a *CollaboratorError, is set.
func (s *EducationScorer) Evaluate(ctx context.Context, entries []candidate.EducationEntry) (EducationDetail, error) {
	var (
		detail    EducationDetail
		collabErr error
	)

	for _, e := range entries {
		if strings.TrimSpace(e.School) == "" && strings.TrimSpace(e.Department) == "" && strings.TrimSpace(e.DegreeLevel) == "" {
			continue
		}

		entry := s.scoreEntry(e)
		if graduate(entry.Degree) {
			bonus, fallback, err := s.thesisBonus(ctx, e)
			if err != nil && collabErr == nil {
				collabErr = err
			}
			if fallback {
				detail.KeywordFallback = true
			}
			entry.ThesisBonus = bonus
		}
		entry.Score = round2(clamp(entry.Score+entry.ThesisBonus, 0, 100))

		detail.Entries = append(detail.Entries, entry)
	}

	for i := range detail.Entries {
		if detail.Best == nil || detail.Entries[i].Score > detail.Best.Score {
			best := detail.Entries[i]
			detail.Best = &best
		}
	}
	if detail.Best != nil {
		detail.Score = detail.Best.Score
	}

	return detail, collabErr
}

func (s *EducationScorer) scoreEntry(e candidate.EducationEntry) EducationEntryScore {
	school := s.rankSchool(e.School)
	degree := s.rankDegree(e.DegreeLevel, e.Department)
	major := s.rules.BaselineMajor
	for _, m := range s.rules.Majors {
		if m.Terms.Any(e.Department) {
			major = m
			break
		}
	}

	return EducationEntryScore{
		School:       strings.TrimSpace(e.School),
		SchoolTier:   school.Tier,
		SchoolPoints: school.Points,
		Degree:       degree.Tier,
		DegreePoints: degree.Points,
		Major:        strings.TrimSpace(e.Department),
		MajorTier:    major.Tier,
		MajorPoints:  major.Points,
		Score:        schoolWeight*school.Points + degreeWeight*degree.Points + majorWeight*major.Points,
	}
}

// rankSchool picks the longest matching school name across every tier so a
// school whose name contains another school's name is not mistaken for it.
func (s *EducationScorer) rankSchool(name string) taxonomy.RankedTerms {
	best := s.rules.BaselineSchool
	longest := 0
	for _, tier := range s.rules.Schools {
		for _, t := range tier.Terms.Matches(name) {
			if n := utf8.RuneCountInString(t.String()); n > longest {
				longest = n
				best = tier
			}
		}
	}
	return best
}

func (s *EducationScorer) rankDegree(level, department string) taxonomy.RankedTerms {
	for _, text := range []string{level, department} {
		for _, d := range s.rules.Degrees {
			if d.Terms.Any(text) {
				return d
			}
		}
	}
	return s.rules.DefaultDegree
}

func graduate(degree string) bool {
	return degree != "" && degree != degreeBachelor
}

// thesisBonus awards the bonus to theses that mention a top venue and whose
// topic is close to an AI category. The topic check uses embeddings and
// falls back to keywords.
func (s *EducationScorer) thesisBonus(ctx context.Context, e candidate.EducationEntry) (float64, bool, error) {
	text := textmatch.Join(e.Thesis, e.Department)
	if strings.TrimSpace(e.Thesis) == "" || !s.rules.Venues.Any(text) {
		return 0, false, nil
	}

	bonus := min(s.rules.ThesisBonus, s.rules.ThesisCap)

	relevant, err := s.thesisRelevant(ctx, text)
	if err == nil {
		if relevant {
			return bonus, false, nil
		}
		return 0, false, nil
	}

	s.logger.Warn("thesis embedding unavailable, using keywords", zap.Error(err))
	if s.rules.ThesisKeywords.Any(text) {
		return bonus, true, err
	}
	return 0, true, err
}

func (s *EducationScorer) thesisRelevant(ctx context.Context, text string) (bool, error) {
	if s.embedder == nil {
		return false, &CollaboratorError{Service: ServiceEmbedding, Err: ai.ErrDisabled}
	}

	categories, err := s.categoryVectors(ctx)
	if err != nil {
		return false, &CollaboratorError{Service: ServiceEmbedding, Err: fmt.Errorf("thesis categories: %w", err)}
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return false, &CollaboratorError{Service: ServiceEmbedding, Err: fmt.Errorf("thesis: %w", err)}
	}

	for _, c := range categories {
		sim, err := Cosine(vec, c)
		if err != nil {
			return false, &CollaboratorError{Service: ServiceEmbedding, Err: err}
		}
		if sim >= s.rules.ThesisThreshold {
			return true, nil
		}
	}
	return false, nil
}

func (s *EducationScorer) categoryVectors(ctx context.Context) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categories != nil {
		return s.categories, nil
	}

	vectors := make([][]float32, 0, len(s.rules.ThesisCategories))
	for _, c := range s.rules.ThesisCategories {
		vec, err := s.embed(ctx, c)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	s.categories = vectors

	return vectors, nil
}

func (s *EducationScorer) embed(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, text)
}
