package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
)

func TestSemanticMatcherSimilarity(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{
		vectors: map[string][]float32{
			"job":       {1, 0},
			"candidate": {1, 1},
		},
	}
	m := NewSemanticMatcher(emb, time.Second)

	sim, err := m.Similarity(context.Background(), "candidate", "job")
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, sim, 1e-6)
}

func TestSemanticMatcherCachesJobVector(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{fallback: []float32{0.5, 0.5}}
	m := NewSemanticMatcher(emb, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Similarity(context.Background(), "candidate text", "job text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := m.Similarity(context.Background(), "candidate text", "job text")
	require.NoError(t, err)

	assert.Equal(t, 9, emb.count("candidate text"))
	// Concurrent first calls may race to fill the cache; later calls never embed the job again.
	first := emb.count("job text")
	assert.LessOrEqual(t, first, 8)
	_, _ = m.Similarity(context.Background(), "other candidate", "job text")
	assert.Equal(t, first, emb.count("job text"))
}

func TestSemanticMatcherEmptyTextSkipsEmbedder(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{fallback: []float32{1}}
	m := NewSemanticMatcher(emb, time.Second)

	for _, tc := range []struct{ cand, job string }{{"", "job"}, {"candidate", "  "}} {
		sim, err := m.Similarity(context.Background(), tc.cand, tc.job)
		require.NoError(t, err)
		assert.Zero(t, sim)
	}
	assert.Zero(t, emb.total())
}

func TestSemanticMatcherFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		embedder ai.Embedder
		wantErr  error
	}{
		{name: "disabled", embedder: nil, wantErr: ai.ErrDisabled},
		{name: "timeout", embedder: blockingEmbedder{}, wantErr: context.DeadlineExceeded},
		{name: "service error", embedder: &stubEmbedder{err: errServiceDown}, wantErr: errServiceDown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewSemanticMatcher(tc.embedder, 20*time.Millisecond)

			sim, err := m.Similarity(context.Background(), "candidate", "job")
			assert.Zero(t, sim)

			var collab *CollaboratorError
			require.True(t, errors.As(err, &collab), "expected CollaboratorError, got %v", err)
			assert.Equal(t, ServiceEmbedding, collab.Service)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCandidateTextOrder(t *testing.T) {
	t.Parallel()

	r := &candidate.Record{
		SkillTags:        []string{"PyTorch"},
		SkillsText:       "Python",
		SelfIntroduction: "Hello",
		WorkExperiences: []candidate.WorkExperience{
			{JobTitle: "Old", DateStart: "2018-01"},
			{JobTitle: "Undated"},
			{JobTitle: "New", DateStart: "2023-05"},
		},
	}

	assert.Equal(t, "PyTorch Python Hello New Old Undated", CandidateText(r))
	assert.Empty(t, CandidateText(nil))
}

func TestCosine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 0}, wantErr: true},
		{name: "empty", a: nil, b: nil, wantErr: true},
	}

	for _, tc := range cases {
		got, err := Cosine(tc.a, tc.b)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
