package scoring

import (
	"fmt"
	"strings"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
)

// SkillClaim is one skill the candidate is credited with.
type SkillClaim struct {
	Skill        string  `json:"skill"`
	Ecosystem    string  `json:"ecosystem"`
	Claimed      bool    `json:"claimed"`
	Verified     bool    `json:"verified"`
	Suspicious   bool    `json:"suspicious,omitempty"`
	Contribution float64 `json:"contribution"`
}

// FrameworkMatch reports how a preferred framework was satisfied. Credit is
// 1 for the framework itself and partial for an alternative of the same
// family.
type FrameworkMatch struct {
	Framework string  `json:"framework"`
	MatchedBy string  `json:"matched_by,omitempty"`
	Family    string  `json:"family,omitempty"`
	Credit    float64 `json:"credit"`
}

type SkillDetail struct {
	Score             float64          `json:"score"`
	Ecosystem         string           `json:"ecosystem"`
	EcosystemTag      string           `json:"ecosystem_tag"`
	Claims            []SkillClaim     `json:"claims,omitempty"`
	SuspiciousFlags   []string         `json:"suspicious_flags,omitempty"`
	KeywordStuffing   bool             `json:"keyword_stuffing"`
	Frameworks        []FrameworkMatch `json:"frameworks,omitempty"`
	FrameworkCoverage float64          `json:"framework_coverage"`
}

// EvaluateSkills buckets claimed and evidenced skills into ecosystems,
// discounts claims the work history never mentions and credits preferred
// frameworks or their same-family alternatives.
func EvaluateSkills(tax *taxonomy.Taxonomy, req *requirement.JobRequirement, tags []string, experiences []candidate.WorkExperience) SkillDetail {
	rules := tax.Skills

	narrative := make([]string, 0, len(experiences))
	for _, exp := range experiences {
		narrative = append(narrative, exp.Text())
	}
	expText := textmatch.Join(narrative...)
	hasExperience := expText != ""

	detail := SkillDetail{Ecosystem: rules.Other.Name, EcosystemTag: "#" + rules.Other.Label}

	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true

		claim := SkillClaim{Skill: tag, Ecosystem: tax.Ecosystem(tag).Name, Claimed: true}
		claim.Verified = tax.Expand(tag).Any(expText)
		claim.Suspicious = hasExperience && !claim.Verified
		detail.Claims = append(detail.Claims, claim)

		if claim.Suspicious {
			detail.SuspiciousFlags = append(detail.SuspiciousFlags, fmt.Sprintf("claimed %q but no work experience mentions it", tag))
		}
	}

	for _, eco := range rules.Ecosystems {
		for _, t := range eco.Terms.Matches(expText) {
			key := strings.ToLower(t.String())
			if seen[key] {
				continue
			}
			seen[key] = true
			detail.Claims = append(detail.Claims, SkillClaim{Skill: t.String(), Ecosystem: eco.Name, Verified: true})
		}
	}

	var (
		base       float64
		suspicious int
	)
	for i := range detail.Claims {
		c := &detail.Claims[i]
		c.Contribution = req.EcosystemWeight(c.Ecosystem)
		if c.Suspicious {
			c.Contribution *= rules.SuspiciousFactor
			suspicious++
		}
		c.Contribution = round2(c.Contribution)
		if c.Contribution > base {
			base = c.Contribution
			detail.Ecosystem = c.Ecosystem
		}
	}
	detail.EcosystemTag = "#" + ecosystemLabel(rules, detail.Ecosystem)

	score := base - min(float64(suspicious)*rules.SuspiciousPenalty, rules.SuspiciousPenaltyCap)

	if keywordStuffing(rules, experiences) {
		detail.KeywordStuffing = true
		detail.SuspiciousFlags = append(detail.SuspiciousFlags, "keyword stuffing: job skills lists are disproportionately long against the descriptions")
		score -= rules.StuffingPenalty
	}

	if len(req.PreferredFrameworks) > 0 {
		corpus := textmatch.Join(textmatch.Join(tags...), expText)
		var total float64
		for _, fw := range req.PreferredFrameworks {
			m := matchFramework(tax, fw, corpus)
			total += m.Credit
			detail.Frameworks = append(detail.Frameworks, m)
		}
		detail.FrameworkCoverage = round2(total / float64(len(req.PreferredFrameworks)))
		score = 0.8*score + 20*detail.FrameworkCoverage
	}

	if len(detail.Claims) == 0 && detail.FrameworkCoverage == 0 {
		detail.Score = 0
		return detail
	}

	detail.Score = round2(clamp(score, rules.Floor, 100))
	return detail
}

func matchFramework(tax *taxonomy.Taxonomy, framework, corpus string) FrameworkMatch {
	m := FrameworkMatch{Framework: framework}

	family, ok := tax.Family(framework)
	if ok {
		m.Family = family.Name
	}

	if tax.Expand(framework).Any(corpus) {
		m.MatchedBy = framework
		m.Credit = 1
		return m
	}
	if !ok {
		return m
	}

	for _, member := range family.Members.Matches(corpus) {
		if strings.EqualFold(member.String(), framework) {
			continue
		}
		m.MatchedBy = member.String()
		m.Credit = tax.Skills.PartialCredit
		break
	}
	return m
}

func keywordStuffing(rules taxonomy.SkillRules, experiences []candidate.WorkExperience) bool {
	var skillWords, descWords int
	for _, exp := range experiences {
		skillWords += len(strings.Fields(exp.JobSkills))
		descWords += len(strings.Fields(exp.JobDescription))
	}
	return float64(skillWords) > rules.StuffingRatio*float64(descWords) && skillWords > rules.StuffingMinWords
}

func ecosystemLabel(rules taxonomy.SkillRules, name string) string {
	for _, e := range rules.Ecosystems {
		if e.Name == name {
			return e.Label
		}
	}
	return rules.Other.Label
}
