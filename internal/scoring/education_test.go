package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/candidate"
)

var csMasterWithThesis = candidate.EducationEntry{
	School:      "National Taiwan University",
	Department:  "Computer Science",
	DegreeLevel: "Master",
	Thesis:      "Efficient transformer inference, published at NeurIPS",
}

func TestEducationReferenceScores(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)
	s := NewEducationScorer(tax, &stubEmbedder{fallback: []float32{1, 0}}, time.Second, nil)

	cases := []struct {
		name  string
		entry candidate.EducationEntry
		want  float64
		tier  string
	}{
		{name: "top school cs master with thesis", entry: csMasterWithThesis, want: 100, tier: "A"},
		{
			name:  "longer name wins over contained name",
			entry: candidate.EducationEntry{School: "National Taiwan University of Science and Technology", Department: "Physics", DegreeLevel: "Bachelor"},
			want:  65,
			tier:  "B",
		},
		{
			name:  "degree read from department",
			entry: candidate.EducationEntry{Department: "Graduate Institute of Computer Science"},
			want:  64,
			tier:  "C",
		},
	}

	for _, tc := range cases {
		detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{tc.entry})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, detail.Score, tc.name)
		require.NotNil(t, detail.Best, tc.name)
		assert.Equal(t, tc.tier, detail.Best.SchoolTier, tc.name)
	}
}

func TestEducationBestEntryWins(t *testing.T) {
	t.Parallel()

	s := NewEducationScorer(defaultTaxonomy(t), nil, time.Second, nil)
	detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{
		{School: "National Taiwan University of Science and Technology", Department: "Physics", DegreeLevel: "Bachelor"},
		{School: "Stanford", Department: "Computer Science", DegreeLevel: "MSc"},
		{Region: "somewhere"},
	})
	require.NoError(t, err)

	assert.Equal(t, 94.0, detail.Score)
	assert.Len(t, detail.Entries, 2)
	assert.Equal(t, "master", detail.Best.Degree)
}

func TestEducationEmpty(t *testing.T) {
	t.Parallel()

	s := NewEducationScorer(defaultTaxonomy(t), nil, time.Second, nil)
	detail, err := s.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, detail.Score)
	assert.Nil(t, detail.Best)
}

func TestEducationThesisBonus(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)
	thesisText := "Efficient transformer inference, published at NeurIPS Computer Science"

	t.Run("no venue means no embedding call", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{fallback: []float32{1, 0}}
		s := NewEducationScorer(tax, emb, time.Second, nil)

		entry := csMasterWithThesis
		entry.Thesis = "Efficient transformer inference"
		detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{entry})
		require.NoError(t, err)
		assert.Equal(t, 94.0, detail.Score)
		assert.Zero(t, emb.total())
	})

	t.Run("unrelated topic by embedding", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{
			fallback: []float32{1, 0},
			vectors:  map[string][]float32{thesisText: {0, 1}},
		}
		s := NewEducationScorer(tax, emb, time.Second, nil)

		detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{csMasterWithThesis})
		require.NoError(t, err)
		assert.Equal(t, 94.0, detail.Score)
		assert.False(t, detail.KeywordFallback)
	})

	t.Run("category vectors are embedded once", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{fallback: []float32{1, 0}}
		s := NewEducationScorer(tax, emb, time.Second, nil)

		for i := 0; i < 3; i++ {
			_, err := s.Evaluate(context.Background(), []candidate.EducationEntry{csMasterWithThesis})
			require.NoError(t, err)
		}
		for _, c := range tax.Education.ThesisCategories {
			assert.Equal(t, 1, emb.count(c), c)
		}
		assert.Equal(t, 3, emb.count(thesisText))
	})

	t.Run("bachelor entries never earn the bonus", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{fallback: []float32{1, 0}}
		s := NewEducationScorer(tax, emb, time.Second, nil)

		entry := csMasterWithThesis
		entry.DegreeLevel = "Bachelor"
		detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{entry})
		require.NoError(t, err)
		assert.Equal(t, 85.0, detail.Score)
		assert.Zero(t, emb.total())
	})
}

func TestEducationThesisKeywordFallback(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)

	for _, emb := range []ai.Embedder{nil, &stubEmbedder{err: errServiceDown}} {
		s := NewEducationScorer(tax, emb, time.Second, nil)
		detail, err := s.Evaluate(context.Background(), []candidate.EducationEntry{csMasterWithThesis})

		var collab *CollaboratorError
		require.True(t, errors.As(err, &collab))
		assert.Equal(t, ServiceEmbedding, collab.Service)
		assert.True(t, detail.KeywordFallback)
		assert.Equal(t, 100.0, detail.Score)
		assert.Equal(t, 10.0, detail.Best.ThesisBonus)
	}
}
