package scoring

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/textmatch"
)

// SemanticMatcher compares candidate and job texts by the cosine similarity
// of their embeddings. Job vectors are cached by content hash and shared by
// concurrent runs.
type SemanticMatcher struct {
	embedder ai.Embedder
	timeout  time.Duration

	mu         sync.RWMutex
	jobVectors map[[sha256.Size]byte][]float32
}

func NewSemanticMatcher(embedder ai.Embedder, timeout time.Duration) *SemanticMatcher {
	return &SemanticMatcher{
		embedder:   embedder,
		timeout:    timeout,
		jobVectors: make(map[[sha256.Size]byte][]float32),
	}
}

// Similarity returns the cosine similarity in [-1,1]. Empty text on either
// side yields 0 without calling the embedder. Embedding failures come back
// as *CollaboratorError.
func (s *SemanticMatcher) Similarity(ctx context.Context, candidateText, jobText string) (float64, error) {
	candidateText = strings.TrimSpace(candidateText)
	jobText = strings.TrimSpace(jobText)
	if candidateText == "" || jobText == "" {
		return 0, nil
	}

	if s.embedder == nil {
		return 0, &CollaboratorError{Service: ServiceEmbedding, Err: ai.ErrDisabled}
	}

	jobVec, err := s.jobVector(ctx, jobText)
	if err != nil {
		return 0, &CollaboratorError{Service: ServiceEmbedding, Err: fmt.Errorf("job text: %w", err)}
	}

	candVec, err := s.embed(ctx, candidateText)
	if err != nil {
		return 0, &CollaboratorError{Service: ServiceEmbedding, Err: fmt.Errorf("candidate text: %w", err)}
	}

	sim, err := Cosine(candVec, jobVec)
	if err != nil {
		return 0, &CollaboratorError{Service: ServiceEmbedding, Err: err}
	}
	return sim, nil
}

func (s *SemanticMatcher) jobVector(ctx context.Context, text string) ([]float32, error) {
	key := sha256.Sum256([]byte(text))

	s.mu.RLock()
	vec, ok := s.jobVectors[key]
	s.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobVectors[key] = vec
	s.mu.Unlock()

	return vec, nil
}

func (s *SemanticMatcher) embed(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, text)
}

// CandidateText builds the text embedded for a candidate: skill tags and
// skills text, the self-introduction, then work experiences newest first.
func CandidateText(r *candidate.Record) string {
	if r == nil {
		return ""
	}

	parts := []string{r.TagText(), r.SkillsText, r.SelfIntroduction}
	for _, exp := range candidate.ReverseChronological(r.WorkExperiences) {
		parts = append(parts, exp.Text())
	}
	return textmatch.Join(parts...)
}

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with anything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d and %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("empty embedding")
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim)), nil
}
