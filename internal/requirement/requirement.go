// Package requirement loads the job requirement a candidate pool is scored
// against.
package requirement

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Dimension names used as dimension_weights keys.
const (
	AIExperience = "ai_experience"
	Engineering  = "engineering"
	Semantic     = "semantic"
	Education    = "education"
	Skills       = "skills"
)

// Dimensions lists the weighted dimensions in scorecard order.
var Dimensions = []string{AIExperience, Engineering, Semantic, Education, Skills}

const weightTolerance = 1e-6

var defaultEcosystemWeights = map[string]float64{
	"llm_stack":      90,
	"deep_learning":  70,
	"traditional_ml": 50,
	"other":          30,
}

// Weights are the contributions of each dimension to the overall score.
type Weights struct {
	AIExperience float64 `json:"ai_experience"`
	Engineering  float64 `json:"engineering"`
	Semantic     float64 `json:"semantic"`
	Education    float64 `json:"education"`
	Skills       float64 `json:"skills"`
}

func DefaultWeights() Weights {
	return Weights{AIExperience: 0.35, Engineering: 0.20, Semantic: 0.20, Education: 0.15, Skills: 0.10}
}

func (w Weights) Sum() float64 {
	return w.AIExperience + w.Engineering + w.Semantic + w.Education + w.Skills
}

// Of returns the weight of a named dimension.
func (w Weights) Of(dimension string) float64 {
	switch dimension {
	case AIExperience:
		return w.AIExperience
	case Engineering:
		return w.Engineering
	case Semantic:
		return w.Semantic
	case Education:
		return w.Education
	case Skills:
		return w.Skills
	}
	return 0
}

// JobRequirement is immutable once returned by New, Parse or Load and may be
// shared by concurrent scoring runs.
type JobRequirement struct {
	Title               string             `json:"title" mapstructure:"title" validate:"required"`
	MustHaveSkills      []string           `json:"must_have_skills,omitempty" mapstructure:"must_have_skills" validate:"dive,required"`
	KeywordWeights      map[string]float64 `json:"keyword_weights,omitempty" mapstructure:"keyword_weights" validate:"dive,gt=0"`
	DimensionWeights    map[string]float64 `json:"dimension_weights,omitempty" mapstructure:"dimension_weights"`
	EmbeddingText       string             `json:"embedding_text" mapstructure:"embedding_text" validate:"required"`
	EcosystemWeights    map[string]float64 `json:"ecosystem_weights,omitempty" mapstructure:"ecosystem_weights" validate:"dive,gte=0,lte=100"`
	PreferredFrameworks []string           `json:"preferred_frameworks,omitempty" mapstructure:"preferred_frameworks" validate:"dive,required"`

	weights Weights
}

// New validates r and returns a normalised copy. Map keys are folded to
// lower case so lookups do not depend on how the document spelled them.
func New(r JobRequirement) (*JobRequirement, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.EmbeddingText = strings.TrimSpace(r.EmbeddingText)
	r.MustHaveSkills = trimAll(r.MustHaveSkills)
	r.PreferredFrameworks = trimAll(r.PreferredFrameworks)
	r.KeywordWeights = foldKeys(r.KeywordWeights, false)
	r.EcosystemWeights = foldKeys(r.EcosystemWeights, true)
	r.DimensionWeights = foldKeys(r.DimensionWeights, false)

	if err := validator.New().Struct(r); err != nil {
		return nil, &ConfigurationError{Reason: "invalid document", Cause: err}
	}

	weights, err := resolveWeights(r.DimensionWeights)
	if err != nil {
		return nil, err
	}
	r.weights = weights

	return &r, nil
}

// Load reads a YAML or JSON requirement document.
func Load(path string) (*JobRequirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Reason: "read " + path, Cause: err}
	}

	format := "yaml"
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		format = "json"
	}

	return Parse(format, data)
}

// Parse decodes a requirement document of the given format ("yaml" or "json").
func Parse(format string, data []byte) (*JobRequirement, error) {
	// Keyword names such as "Next.js" must not be split into nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &ConfigurationError{Reason: "parse document", Cause: err}
	}

	var r JobRequirement
	if err := v.Unmarshal(&r); err != nil {
		return nil, &ConfigurationError{Reason: "decode document", Cause: err}
	}

	return New(r)
}

func resolveWeights(raw map[string]float64) (Weights, error) {
	if len(raw) == 0 {
		return DefaultWeights(), nil
	}

	known := map[string]bool{}
	for _, d := range Dimensions {
		known[d] = true
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			return Weights{}, &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("unknown dimension %q", k)}
		}
		if math.IsNaN(raw[k]) || math.IsInf(raw[k], 0) {
			return Weights{}, &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("weight for %q is not a finite number", k)}
		}
		if raw[k] < 0 {
			return Weights{}, &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("negative weight for %q", k)}
		}
	}
	for _, d := range Dimensions {
		if _, ok := raw[d]; !ok {
			return Weights{}, &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("missing dimension %q", d)}
		}
	}

	w := Weights{
		AIExperience: raw[AIExperience],
		Engineering:  raw[Engineering],
		Semantic:     raw[Semantic],
		Education:    raw[Education],
		Skills:       raw[Skills],
	}
	if sum := w.Sum(); !(math.Abs(sum-1) <= weightTolerance) {
		return Weights{}, &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("weights sum to %.6f, want 1.0", sum)}
	}

	return w, nil
}

// Weights returns the resolved dimension weights.
func (r *JobRequirement) Weights() Weights {
	return r.weights
}

// MustHaveGroups splits every must-have entry on "|" into its alternatives.
func (r *JobRequirement) MustHaveGroups() [][]string {
	groups := make([][]string, 0, len(r.MustHaveSkills))
	for _, entry := range r.MustHaveSkills {
		var group []string
		for _, alt := range strings.Split(entry, "|") {
			if alt = strings.TrimSpace(alt); alt != "" {
				group = append(group, alt)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// KeywordWeight returns the override for a taxonomy keyword, if any.
func (r *JobRequirement) KeywordWeight(term string) (float64, bool) {
	w, ok := r.KeywordWeights[strings.ToLower(strings.TrimSpace(term))]
	return w, ok
}

// KeywordNames returns the override keys in sorted order.
func (r *JobRequirement) KeywordNames() []string {
	names := make([]string, 0, len(r.KeywordWeights))
	for k := range r.KeywordWeights {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// EcosystemWeight returns the base value of a skill ecosystem ("llm_stack",
// "deep_learning", "traditional_ml" or "other").
func (r *JobRequirement) EcosystemWeight(name string) float64 {
	name = ecosystemKey(name)
	if w, ok := r.EcosystemWeights[name]; ok {
		return w
	}
	if w, ok := defaultEcosystemWeights[name]; ok {
		return w
	}
	return defaultEcosystemWeights["other"]
}

func ecosystemKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func foldKeys(in map[string]float64, ecosystem bool) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if ecosystem {
			k = ecosystemKey(k)
		} else {
			k = strings.ToLower(strings.TrimSpace(k))
		}
		out[k] = v
	}
	return out
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
