// Package taxonomy loads the keyword tables the scorers classify text with:
// the four-tier signal sets, synonym groups, complexity and metric patterns,
// the engineering matrix, education rankings and skill ecosystems.
package taxonomy

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/textmatch"
)

//go:embed default.yaml
var defaultTables []byte

const defaultSource = "builtin"

// Tables is the document layout of a taxonomy file.
type Tables struct {
	Version         string      `mapstructure:"version" validate:"required"`
	TagWeightFactor float64     `mapstructure:"tag-weight-factor" validate:"gt=0,lte=1"`
	Tiers           []TierTable `mapstructure:"tiers" validate:"len=4,dive"`
	Synonyms        [][]string  `mapstructure:"synonyms" validate:"dive,min=2"`
	Complexity      struct {
		DataScale    []string `mapstructure:"data-scale" validate:"min=1"`
		Architecture []string `mapstructure:"architecture" validate:"min=1"`
		ModelScale   []string `mapstructure:"model-scale" validate:"min=1"`
	} `mapstructure:"complexity"`
	Metrics struct {
		Numeric    []string `mapstructure:"numeric" validate:"min=1"`
		Domain     []string `mapstructure:"domain" validate:"min=1"`
		Vanity     []string `mapstructure:"vanity"`
		Generative []string `mapstructure:"generative"`
		Vague      []string `mapstructure:"vague"`
	} `mapstructure:"metrics"`
	Engineering struct {
		Cap      float64    `mapstructure:"cap" validate:"gt=0"`
		Backend  StackTable `mapstructure:"backend"`
		Database StackTable `mapstructure:"database"`
		Frontend StackTable `mapstructure:"frontend"`
	} `mapstructure:"engineering"`
	Education EducationTable `mapstructure:"education"`
	Skills    SkillTable     `mapstructure:"skills"`
}

// Keyword is a weighted tier signal. Aliases are other spellings counted as
// the same signal.
type Keyword struct {
	Term    string   `mapstructure:"term" validate:"required"`
	Aliases []string `mapstructure:"aliases" validate:"omitempty,dive,required"`
	Weight  float64  `mapstructure:"weight" validate:"gt=0"`
}

type TierTable struct {
	Level    int       `mapstructure:"level" validate:"min=1,max=4"`
	Label    string    `mapstructure:"label" validate:"required"`
	Tag      string    `mapstructure:"tag" validate:"required"`
	Score    float64   `mapstructure:"score" validate:"gte=0,lte=100"`
	Keywords []Keyword `mapstructure:"keywords" validate:"min=1,dive"`
}

// StackTable holds the level 1..3 keyword lists of one engineering
// dimension and the points awarded for levels 0..3.
type StackTable struct {
	Points []float64  `mapstructure:"points" validate:"len=4"`
	Levels [][]string `mapstructure:"levels" validate:"len=3"`
}

type Ranked struct {
	Tier   string   `mapstructure:"tier" validate:"required"`
	Points float64  `mapstructure:"points" validate:"gte=0,lte=100"`
	Names  []string `mapstructure:"names"`
	Terms  []string `mapstructure:"terms"`
}

type DegreeTable struct {
	Level  string   `mapstructure:"level" validate:"required"`
	Points float64  `mapstructure:"points" validate:"gte=0,lte=100"`
	Terms  []string `mapstructure:"terms" validate:"min=1"`
}

type EducationTable struct {
	BaselineSchool Ranked        `mapstructure:"baseline-school"`
	Schools        []Ranked      `mapstructure:"schools" validate:"dive"`
	Degrees        []DegreeTable `mapstructure:"degrees" validate:"min=1,dive"`
	DefaultDegree  string        `mapstructure:"default-degree" validate:"required"`
	BaselineMajor  Ranked        `mapstructure:"baseline-major"`
	Majors         []Ranked      `mapstructure:"majors" validate:"dive"`
	Thesis         struct {
		Bonus               float64  `mapstructure:"bonus" validate:"gte=0"`
		Cap                 float64  `mapstructure:"cap" validate:"gte=0"`
		SimilarityThreshold float64  `mapstructure:"similarity-threshold" validate:"gte=0,lte=1"`
		Categories          []string `mapstructure:"categories"`
		Keywords            []string `mapstructure:"keywords"`
		Venues              []string `mapstructure:"venues"`
	} `mapstructure:"thesis"`
}

type EcosystemTable struct {
	Name  string   `mapstructure:"name" validate:"required"`
	Label string   `mapstructure:"label" validate:"required"`
	Terms []string `mapstructure:"terms"`
}

type FamilyTable struct {
	Name    string   `mapstructure:"name" validate:"required"`
	Members []string `mapstructure:"members" validate:"min=2"`
}

type SkillTable struct {
	SuspiciousFactor     float64          `mapstructure:"suspicious-factor" validate:"gte=0,lte=1"`
	SuspiciousPenalty    float64          `mapstructure:"suspicious-penalty" validate:"gte=0"`
	SuspiciousPenaltyCap float64          `mapstructure:"suspicious-penalty-cap" validate:"gte=0"`
	StuffingPenalty      float64          `mapstructure:"stuffing-penalty" validate:"gte=0"`
	StuffingRatio        float64          `mapstructure:"stuffing-ratio" validate:"gt=0"`
	StuffingMinWords     int              `mapstructure:"stuffing-min-words" validate:"gte=0"`
	PartialCredit        float64          `mapstructure:"partial-credit" validate:"gte=0,lte=1"`
	Floor                float64          `mapstructure:"floor" validate:"gte=0,lte=100"`
	Ecosystems           []EcosystemTable `mapstructure:"ecosystems" validate:"min=1,dive"`
	OtherEcosystem       EcosystemTable   `mapstructure:"other-ecosystem"`
	Families             []FamilyTable    `mapstructure:"families" validate:"dive"`
}

// Tier describes one level of the experience pyramid.
type Tier struct {
	Level int
	Label string
	Tag   string
	Score float64
}

// TierKeyword is a compiled tier signal.
type TierKeyword struct {
	Term   textmatch.Term
	Weight float64
	Level  int
}

type ComplexityRules struct {
	DataScale    []*regexp.Regexp
	Architecture []*regexp.Regexp
	ModelScale   []*regexp.Regexp
}

type MetricRules struct {
	Numeric    []*regexp.Regexp
	Vague      []*regexp.Regexp
	Domain     textmatch.Terms
	Vanity     textmatch.Terms
	Generative textmatch.Terms
}

// Stack is one compiled engineering dimension. Levels[0] holds the L1 terms.
type Stack struct {
	Name   string
	Levels [3]textmatch.Terms
	Points [4]float64
}

type EngineeringRules struct {
	Cap      float64
	Backend  Stack
	Database Stack
	Frontend Stack
}

type RankedTerms struct {
	Tier   string
	Points float64
	Terms  textmatch.Terms
}

type EducationRules struct {
	BaselineSchool RankedTerms
	Schools        []RankedTerms
	Degrees        []RankedTerms
	DefaultDegree  RankedTerms
	BaselineMajor  RankedTerms
	Majors         []RankedTerms

	ThesisBonus     float64
	ThesisCap       float64
	ThesisThreshold float64
	// ThesisCategories are the plain-language category descriptions that
	// thesis text is embedded against.
	ThesisCategories []string
	ThesisKeywords   textmatch.Terms
	Venues           textmatch.Terms
}

type Ecosystem struct {
	Name  string
	Label string
	Terms textmatch.Terms
}

type Family struct {
	Name    string
	Members textmatch.Terms
}

type SkillRules struct {
	SuspiciousFactor     float64
	SuspiciousPenalty    float64
	SuspiciousPenaltyCap float64
	StuffingPenalty      float64
	StuffingRatio        float64
	StuffingMinWords     int
	PartialCredit        float64
	Floor                float64
	Ecosystems           []Ecosystem
	Other                Ecosystem
	Families             []Family
}

// Taxonomy is the compiled, read-only form of Tables. It is safe for
// concurrent use.
type Taxonomy struct {
	Source          string
	Version         string
	TagWeightFactor float64
	Keywords        []TierKeyword
	Complexity      ComplexityRules
	Metrics         MetricRules
	Engineering     EngineeringRules
	Education       EducationRules
	Skills          SkillRules

	tiers    map[int]Tier
	synonyms []textmatch.Terms
	tables   Tables
}

// Default returns the taxonomy shipped with the binary.
func Default() (*Taxonomy, error) {
	return Parse(defaultSource, defaultTables)
}

// Load reads a taxonomy file. An empty path selects the builtin tables.
func Load(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Reason: "read file", Cause: err}
	}

	return Parse(path, data)
}

// Parse decodes a YAML taxonomy document and compiles it.
func Parse(source string, data []byte) (*Taxonomy, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "parse document", Cause: err}
	}

	var tables Tables
	if err := v.Unmarshal(&tables); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "decode document", Cause: err}
	}

	return Compile(source, tables)
}

// Compile validates tables and builds the matchers.
func Compile(source string, tables Tables) (*Taxonomy, error) {
	if err := validator.New().Struct(tables); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "invalid tables", Cause: err}
	}

	t := &Taxonomy{
		Source:          source,
		Version:         tables.Version,
		TagWeightFactor: tables.TagWeightFactor,
		tiers:           make(map[int]Tier, len(tables.Tiers)),
		tables:          tables,
	}

	for _, tier := range tables.Tiers {
		if _, dup := t.tiers[tier.Level]; dup {
			return nil, &ConfigurationError{Source: source, Reason: fmt.Sprintf("tier %d declared twice", tier.Level)}
		}
		t.tiers[tier.Level] = Tier{Level: tier.Level, Label: tier.Label, Tag: tier.Tag, Score: tier.Score}
		for _, kw := range tier.Keywords {
			t.Keywords = append(t.Keywords, TierKeyword{Term: textmatch.NewTerm(kw.Term, kw.Aliases...), Weight: kw.Weight, Level: tier.Level})
		}
	}
	sort.SliceStable(t.Keywords, func(i, j int) bool { return t.Keywords[i].Level > t.Keywords[j].Level })

	for _, group := range tables.Synonyms {
		t.synonyms = append(t.synonyms, textmatch.Compile(group))
	}

	var err error
	if t.Complexity, err = compileComplexity(tables); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "complexity patterns", Cause: err}
	}
	if t.Metrics, err = compileMetrics(tables); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "metric patterns", Cause: err}
	}

	t.Engineering = EngineeringRules{
		Cap:      tables.Engineering.Cap,
		Backend:  compileStack("backend", tables.Engineering.Backend),
		Database: compileStack("database", tables.Engineering.Database),
		Frontend: compileStack("frontend", tables.Engineering.Frontend),
	}

	if t.Education, err = compileEducation(tables.Education); err != nil {
		return nil, &ConfigurationError{Source: source, Reason: "education tables", Cause: err}
	}

	t.Skills = compileSkills(tables.Skills)

	return t, nil
}

func compileComplexity(tables Tables) (ComplexityRules, error) {
	var (
		rules ComplexityRules
		err   error
	)
	if rules.DataScale, err = textmatch.CompilePatterns(tables.Complexity.DataScale); err != nil {
		return rules, err
	}
	if rules.Architecture, err = textmatch.CompilePatterns(tables.Complexity.Architecture); err != nil {
		return rules, err
	}
	if rules.ModelScale, err = textmatch.CompilePatterns(tables.Complexity.ModelScale); err != nil {
		return rules, err
	}
	return rules, nil
}

func compileMetrics(tables Tables) (MetricRules, error) {
	rules := MetricRules{
		Domain:     textmatch.Compile(tables.Metrics.Domain),
		Vanity:     textmatch.Compile(tables.Metrics.Vanity),
		Generative: textmatch.Compile(tables.Metrics.Generative),
	}

	var err error
	if rules.Numeric, err = textmatch.CompilePatterns(tables.Metrics.Numeric); err != nil {
		return rules, err
	}
	if rules.Vague, err = textmatch.CompilePatterns(tables.Metrics.Vague); err != nil {
		return rules, err
	}
	return rules, nil
}

func compileStack(name string, table StackTable) Stack {
	stack := Stack{Name: name}
	copy(stack.Points[:], table.Points)
	for i := range stack.Levels {
		if i < len(table.Levels) {
			stack.Levels[i] = textmatch.Compile(table.Levels[i])
		}
	}
	return stack
}

func compileEducation(table EducationTable) (EducationRules, error) {
	rules := EducationRules{
		BaselineSchool:   RankedTerms{Tier: table.BaselineSchool.Tier, Points: table.BaselineSchool.Points},
		BaselineMajor:    RankedTerms{Tier: table.BaselineMajor.Tier, Points: table.BaselineMajor.Points},
		ThesisBonus:      table.Thesis.Bonus,
		ThesisCap:        table.Thesis.Cap,
		ThesisThreshold:  table.Thesis.SimilarityThreshold,
		ThesisCategories: table.Thesis.Categories,
		ThesisKeywords:   textmatch.Compile(table.Thesis.Keywords),
		Venues:           textmatch.Compile(table.Thesis.Venues),
	}

	for _, s := range table.Schools {
		rules.Schools = append(rules.Schools, RankedTerms{Tier: s.Tier, Points: s.Points, Terms: textmatch.Compile(s.Names)})
	}
	for _, m := range table.Majors {
		rules.Majors = append(rules.Majors, RankedTerms{Tier: m.Tier, Points: m.Points, Terms: textmatch.Compile(m.Terms)})
	}

	found := false
	for _, d := range table.Degrees {
		ranked := RankedTerms{Tier: d.Level, Points: d.Points, Terms: textmatch.Compile(d.Terms)}
		rules.Degrees = append(rules.Degrees, ranked)
		if d.Level == table.DefaultDegree {
			rules.DefaultDegree = ranked
			found = true
		}
	}
	if !found {
		return rules, fmt.Errorf("default degree %q is not a declared degree level", table.DefaultDegree)
	}

	return rules, nil
}

func compileSkills(table SkillTable) SkillRules {
	rules := SkillRules{
		SuspiciousFactor:     table.SuspiciousFactor,
		SuspiciousPenalty:    table.SuspiciousPenalty,
		SuspiciousPenaltyCap: table.SuspiciousPenaltyCap,
		StuffingPenalty:      table.StuffingPenalty,
		StuffingRatio:        table.StuffingRatio,
		StuffingMinWords:     table.StuffingMinWords,
		PartialCredit:        table.PartialCredit,
		Floor:                table.Floor,
		Other:                Ecosystem{Name: table.OtherEcosystem.Name, Label: table.OtherEcosystem.Label},
	}
	if rules.Other.Name == "" {
		rules.Other = Ecosystem{Name: "other", Label: "Other"}
	}

	for _, e := range table.Ecosystems {
		rules.Ecosystems = append(rules.Ecosystems, Ecosystem{Name: e.Name, Label: e.Label, Terms: textmatch.Compile(e.Terms)})
	}
	for _, f := range table.Families {
		rules.Families = append(rules.Families, Family{Name: f.Name, Members: textmatch.Compile(f.Members)})
	}

	return rules
}

// Tier returns the pyramid level description.
func (t *Taxonomy) Tier(level int) (Tier, bool) {
	tier, ok := t.tiers[level]
	return tier, ok
}

// Tiers returns the levels ordered from 1 to 4.
func (t *Taxonomy) Tiers() []Tier {
	out := make([]Tier, 0, len(t.tiers))
	for _, tier := range t.tiers {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// Expand returns term together with every synonym of the groups it
// belongs to. A term outside every group is returned alone.
func (t *Taxonomy) Expand(term string) textmatch.Terms {
	term = strings.TrimSpace(term)
	expanded := textmatch.Compile([]string{term})
	for _, group := range t.synonyms {
		member := false
		for _, s := range group {
			if strings.EqualFold(s.String(), term) {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		for _, s := range group {
			if !strings.EqualFold(s.String(), term) {
				expanded = append(expanded, s)
			}
		}
	}
	return expanded
}

// Ecosystem returns the ecosystem a skill belongs to, falling back to the
// catch-all bucket.
func (t *Taxonomy) Ecosystem(skill string) Ecosystem {
	for _, e := range t.Skills.Ecosystems {
		if e.Terms.Any(skill) {
			return e
		}
	}
	return t.Skills.Other
}

// Family returns the framework family a name belongs to.
func (t *Taxonomy) Family(name string) (Family, bool) {
	for _, f := range t.Skills.Families {
		if f.Members.Any(name) {
			return f, true
		}
	}
	return Family{}, false
}

// Tables returns the raw document the taxonomy was compiled from.
func (t *Taxonomy) Tables() Tables {
	return t.tables
}
