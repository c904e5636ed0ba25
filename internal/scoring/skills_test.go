package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
)

func TestEvaluateSkills(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)
	req := newRequirement(t, requirement.JobRequirement{})

	cases := []struct {
		name       string
		tags       []string
		exps       []candidate.WorkExperience
		want       float64
		ecosystem  string
		suspicious int
		stuffing   bool
	}{
		{
			name:      "verified llm stack",
			tags:      []string{"LangChain"},
			exps:      []candidate.WorkExperience{{JobDescription: "Built RAG agents with LangChain"}},
			want:      90,
			ecosystem: "llm_stack",
		},
		{
			name:       "claims missing from work history",
			tags:       []string{"PyTorch", "Kubernetes"},
			exps:       []candidate.WorkExperience{{JobDescription: "Wrote SQL reports"}},
			want:       38,
			ecosystem:  "deep_learning",
			suspicious: 2,
		},
		{
			name:      "no work history flags nothing",
			tags:      []string{"PyTorch"},
			want:      70,
			ecosystem: "deep_learning",
		},
		{
			name:      "evidence from experience alone",
			exps:      []candidate.WorkExperience{{JobDescription: "Tuned XGBoost models"}},
			want:      50,
			ecosystem: "traditional_ml",
		},
		{
			name: "keyword stuffing",
			tags: []string{"LangChain"},
			exps: []candidate.WorkExperience{{
				JobDescription: "Built internal tools for sales",
				JobSkills:      "LangChain " + strings.Repeat("Excel ", 25),
			}},
			want:       85,
			ecosystem:  "llm_stack",
			suspicious: 1,
			stuffing:   true,
		},
		{
			name:       "floor",
			tags:       []string{"Excel", "Word", "Jira", "Slack", "Zoom", "Figma"},
			exps:       []candidate.WorkExperience{{JobDescription: "Wrote reports"}},
			want:       10,
			ecosystem:  "other",
			suspicious: 6,
		},
		{name: "empty record", want: 0, ecosystem: "other"},
	}

	for _, tc := range cases {
		got := EvaluateSkills(tax, req, tc.tags, tc.exps)
		assert.Equal(t, tc.want, got.Score, tc.name)
		assert.Equal(t, tc.ecosystem, got.Ecosystem, tc.name)
		assert.Len(t, got.SuspiciousFlags, tc.suspicious, tc.name)
		assert.Equal(t, tc.stuffing, got.KeywordStuffing, tc.name)
	}
}

func TestEvaluateSkillsEcosystemWeights(t *testing.T) {
	t.Parallel()

	req := newRequirement(t, requirement.JobRequirement{
		EcosystemWeights: map[string]float64{"LLM-Stack": 100},
	})

	got := EvaluateSkills(defaultTaxonomy(t), req, []string{"vLLM"}, []candidate.WorkExperience{{JobDescription: "Served Llama with vLLM"}})
	assert.Equal(t, 100.0, got.Score)
	assert.Equal(t, "#LLM-Stack", got.EcosystemTag)
}

func TestEvaluateSkillsPreferredFrameworks(t *testing.T) {
	t.Parallel()

	tax := defaultTaxonomy(t)
	exps := []candidate.WorkExperience{{JobDescription: "Trained TensorFlow models and built Vue dashboards"}}

	cases := []struct {
		name       string
		frameworks []string
		want       float64
		coverage   float64
		credits    []float64
	}{
		{name: "same family alternatives", frameworks: []string{"PyTorch", "React"}, want: 66, coverage: 0.5, credits: []float64{0.5, 0.5}},
		{name: "exact match", frameworks: []string{"TensorFlow"}, want: 76, coverage: 1, credits: []float64{1}},
		{name: "no alternative", frameworks: []string{"Kafka", "Erlang"}, want: 56, coverage: 0, credits: []float64{0, 0}},
	}

	for _, tc := range cases {
		req := newRequirement(t, requirement.JobRequirement{PreferredFrameworks: tc.frameworks})
		got := EvaluateSkills(tax, req, []string{"TensorFlow"}, exps)

		assert.Equal(t, tc.want, got.Score, tc.name)
		assert.Equal(t, tc.coverage, got.FrameworkCoverage, tc.name)
		credits := make([]float64, 0, len(got.Frameworks))
		for _, f := range got.Frameworks {
			credits = append(credits, f.Credit)
		}
		assert.Equal(t, tc.credits, credits, tc.name)
	}
}
