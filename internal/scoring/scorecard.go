package scoring

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
)

const (
	tagHardFilterFailed = "#Hard-Filter-Failed"
	tagFullStack        = "#Full-Stack"
	tagDevOps           = "#DevOps"
	tagVectorDB         = "#Vector-DB"

	fullStackMaturity = 0.3
	evidencePreview   = 5
)

// ScoreBreakdown is the result of scoring one candidate. It carries no
// timestamps so repeated runs marshal to identical bytes.
type ScoreBreakdown struct {
	CandidateID   string              `json:"candidate_id"`
	CandidateName string              `json:"candidate_name,omitempty"`
	OverallScore  float64             `json:"overall_score"`
	SAI           float64             `json:"s_ai"`
	SEng          float64             `json:"s_eng"`
	SSemantic     float64             `json:"s_semantic"`
	SEdu          float64             `json:"s_edu"`
	SSkill        float64             `json:"s_skill"`
	Weights       requirement.Weights `json:"weights"`

	PassedHardFilter   bool     `json:"passed_hard_filter"`
	HardFilterFailures []string `json:"hard_filter_failures"`

	Tags               []string          `json:"tags"`
	Experience         ExperienceDetail  `json:"experience_detail"`
	Engineering        EngineeringDetail `json:"engineering_detail"`
	Education          EducationDetail   `json:"education_detail"`
	Skills             SkillDetail       `json:"skill_detail"`
	SemanticSimilarity float64           `json:"semantic_similarity"`

	Strengths            []string `json:"strengths"`
	Gaps                 []string `json:"gaps"`
	InterviewSuggestions []string `json:"interview_suggestions"`
	Warnings             []string `json:"warnings"`
	AnalysisText         string   `json:"analysis_text"`
}

// Degraded reports whether any collaborator was unavailable for this run.
func (b *ScoreBreakdown) Degraded() bool {
	return len(b.Warnings) > 0
}

var evidenceTags = []struct {
	tag   string
	terms textmatch.Terms
}{
	{"#Fine-tuning", textmatch.Compile([]string{"Fine-tuning"})},
	{"#RAG", textmatch.Compile([]string{"RAG"})},
	{"#GPU-Optimization", textmatch.Compile([]string{"CUDA", "vLLM"})},
	{"#LLM-Framework", textmatch.Compile([]string{"LangChain", "LlamaIndex"})},
}

func buildTags(tax *taxonomy.Taxonomy, b *ScoreBreakdown) []string {
	var tags []string

	if tier, ok := tax.Tier(b.Experience.Tier); ok {
		tags = append(tags, tier.Tag)
	}

	evidence := strings.Join(b.Experience.Evidence, " ")
	for _, et := range evidenceTags {
		if et.terms.Any(evidence) {
			tags = append(tags, et.tag)
		}
	}

	if b.Engineering.Maturity >= fullStackMaturity {
		tags = append(tags, tagFullStack)
	}
	if b.Engineering.Backend.Level >= 3 {
		tags = append(tags, tagDevOps)
	}
	if b.Engineering.Database.Level >= 3 {
		tags = append(tags, tagVectorDB)
	}
	if len(b.Skills.Claims) > 0 {
		tags = append(tags, b.Skills.EcosystemTag)
	}
	if !b.PassedHardFilter {
		tags = append(tags, tagHardFilterFailed)
	}

	sort.Strings(tags)
	out := tags[:0]
	for i, t := range tags {
		if i > 0 && t == tags[i-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// assess derives strengths, gaps and interview suggestions from the
// sub-results.
func assess(tax *taxonomy.Taxonomy, b *ScoreBreakdown) ([]string, []string, []string) {
	strengths, gaps, suggestions := []string{}, []string{}, []string{}

	if !b.PassedHardFilter {
		gaps = append(gaps, "Fails the must-have requirements: "+strings.Join(b.HardFilterFailures, "; "))
	}

	if best := b.Education.Best; best != nil {
		if len(tax.Education.Schools) > 0 && best.SchoolTier == tax.Education.Schools[0].Tier {
			strengths = append(strengths, "Top-tier school with a strong academic foundation")
		}
		if graduate(best.Degree) {
			strengths = append(strengths, "Holds a graduate degree")
		}
		if len(tax.Education.Majors) > 0 && best.MajorTier == tax.Education.Majors[0].Tier {
			strengths = append(strengths, "Major is directly relevant (CS, EE, AI or similar)")
		} else if b.Education.Score > 0 {
			gaps = append(gaps, "Major is outside the core computing disciplines")
		}
		if best.ThesisBonus > 0 {
			strengths = append(strengths, "AI thesis with a top-venue publication")
		}
	}

	exp := b.Experience
	switch {
	case exp.Tier >= 3:
		strengths = append(strengths, fmt.Sprintf("AI depth reaches Tier %d (%s) with model-level work", exp.Tier, exp.TierLabel))
	case exp.Tier == 2:
		strengths = append(strengths, "Has built RAG or agent system architectures")
	default:
		gaps = append(gaps, "AI experience stays at the API-calling level")
		suggestions = append(suggestions, "Ask about the candidate's understanding of model internals and architecture")
	}

	switch {
	case exp.MetricScore > 0.5:
		strengths = append(strengths, "Descriptions carry concrete quantified results")
	case exp.MetricScore == 0:
		gaps = append(gaps, "Descriptions lack quantified results")
		suggestions = append(suggestions, "Ask for concrete numbers on project impact")
	}
	if len(exp.MetricFlags) > 0 {
		suggestions = append(suggestions, "Ask how the reported accuracy or improvement figures were measured")
	}
	if exp.ComplexityScore > 0.5 {
		strengths = append(strengths, "Has worked on large-scale or production systems")
	}

	eng := b.Engineering
	switch {
	case eng.Maturity >= fullStackMaturity:
		strengths = append(strengths, fmt.Sprintf("Strong engineering delivery across the stack (m_eng=%s)", formatScore(eng.Maturity)))
	case eng.Maturity > 0:
		strengths = append(strengths, "Has basic engineering delivery skills")
	default:
		gaps = append(gaps, "Little evidence of backend or deployment work")
		suggestions = append(suggestions, "Check software engineering practice such as Docker and API development")
	}
	if eng.Backend.Level == 0 {
		suggestions = append(suggestions, "No backend experience mentioned; ask about Docker and API design")
	}
	if eng.Database.Level == 0 {
		suggestions = append(suggestions, "No database experience mentioned; ask about SQL and NoSQL basics")
	}

	var suspicious []string
	for _, c := range b.Skills.Claims {
		if c.Suspicious {
			suspicious = append(suspicious, c.Skill)
		}
	}
	if len(suspicious) > 0 {
		gaps = append(gaps, "Some claimed skills lack work-experience evidence")
		suggestions = append(suggestions, "Verify hands-on use of: "+strings.Join(suspicious, ", "))
	}
	if b.Skills.KeywordStuffing {
		gaps = append(gaps, "Job skill lists look padded with keywords")
	}

	if b.SemanticSimilarity >= 0.7 {
		strengths = append(strengths, "Profile closely matches the job description")
	}

	return strengths, gaps, suggestions
}

var levelNames = [4]string{"none", "basic", "intermediate", "advanced"}

// renderAnalysis builds the markdown scorecard.
func renderAnalysis(record *candidate.Record, b *ScoreBreakdown) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	line("### %s assessment", record.Label())
	line("")
	if b.Degraded() {
		line("> **Degraded confidence:** %s", strings.Join(b.Warnings, "; "))
		line("")
	}

	w := b.Weights
	line("**Overall: %s/100**", formatScore(b.OverallScore))
	line("- AI experience (%s): %s", percent(w.AIExperience), formatScore(round1(b.SAI*w.AIExperience)))
	line("- Engineering (%s): %s", percent(w.Engineering), formatScore(round1(b.SEng*w.Engineering)))
	line("- Semantic match (%s): %s", percent(w.Semantic), formatScore(round1(b.SSemantic*w.Semantic)))
	line("- Education (%s): %s", percent(w.Education), formatScore(round1(b.SEdu*w.Education)))
	line("- Skills (%s): %s", percent(w.Skills), formatScore(round1(b.SSkill*w.Skills)))
	line("")

	if b.PassedHardFilter {
		line("**Hard filter:** passed")
	} else {
		line("**Hard filter:** failed")
		for _, f := range b.HardFilterFailures {
			line("- %s", f)
		}
	}
	line("")

	exp := b.Experience
	line("**AI experience: Tier %d (%s)**", exp.Tier, exp.TierLabel)
	if len(exp.Evidence) > 0 {
		preview := exp.Evidence[:min(len(exp.Evidence), evidencePreview)]
		line("- Evidence: %s", strings.Join(preview, ", "))
	}
	line("- Complexity %s, metrics %s", formatScore(exp.ComplexityScore), formatScore(exp.MetricScore))
	for _, f := range exp.MetricFlags {
		line("- %s", f)
	}
	line("")

	if best := b.Education.Best; best != nil {
		school := best.School
		if school == "" {
			school = "unknown school"
		}
		line("**Education:** %s-tier school (%s) / %s / major relevance %s", best.SchoolTier, school, best.Degree, best.MajorTier)
	} else {
		line("**Education:** no data")
	}
	line("")

	eng := b.Engineering
	line("**Engineering maturity (m_eng = %s):**", formatScore(eng.Maturity))
	line("- Backend: level %d (%s)", eng.Backend.Level, levelNames[eng.Backend.Level])
	line("- Database: level %d (%s)", eng.Database.Level, levelNames[eng.Database.Level])
	line("- Frontend: level %d (%s)", eng.Frontend.Level, levelNames[eng.Frontend.Level])
	line("")

	line("**Skill ecosystem:** %s", strings.TrimPrefix(b.Skills.EcosystemTag, "#"))
	if n := len(b.Skills.SuspiciousFlags); n > 0 {
		line("- Suspicious claims: %d", n)
	}
	if len(b.Skills.Frameworks) > 0 {
		line("- Preferred framework coverage: %s", formatScore(b.Skills.FrameworkCoverage))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func percent(w float64) string {
	return formatScore(round1(w*100)) + "%"
}
