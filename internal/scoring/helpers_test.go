package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
)

func defaultTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("default taxonomy: %v", err)
	}
	return tax
}

func newRequirement(t *testing.T, r requirement.JobRequirement) *requirement.JobRequirement {
	t.Helper()
	if r.Title == "" {
		r.Title = "AI Engineer"
	}
	if r.EmbeddingText == "" {
		r.EmbeddingText = "AI engineer building LLM inference and RAG systems in production"
	}
	req, err := requirement.New(r)
	if err != nil {
		t.Fatalf("requirement: %v", err)
	}
	return req
}

// stubEmbedder returns a fixed vector per text and a fallback vector for
// everything else. Calls are counted per text.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    map[string]int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[text]++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.fallback, nil
}

func (s *stubEmbedder) count(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

func (s *stubEmbedder) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// blockingEmbedder waits for the context to end, like a hung service.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubDelegate struct {
	mu         sync.Mutex
	tier       int
	complexity float64
	err        error
	calls      int
}

func (s *stubDelegate) Complexity(context.Context, string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.complexity, s.err
}

func (s *stubDelegate) Tier(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.tier, s.err
}

var errServiceDown = errors.New("service down")
