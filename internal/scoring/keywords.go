package scoring

import (
	"fmt"
	"strings"

	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
)

// maxEvidence bounds the evidence list attached to an experience detail.
const maxEvidence = 15

// KeywordHit is one matched stack keyword. Tier is 0 for keywords that only
// exist in the job requirement.
type KeywordHit struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
	Tier    int     `json:"tier"`
	TagOnly bool    `json:"tag_only,omitempty"`
}

type keywordEntry struct {
	term   textmatch.Term
	weight float64
	tier   int
}

// KeywordMatcher maps free text onto the weighted tier taxonomy. Weights
// given in the job requirement override the taxonomy defaults, and
// requirement keywords unknown to the taxonomy are matched as tier 0.
type KeywordMatcher struct {
	entries   []keywordEntry
	tagFactor float64
}

func NewKeywordMatcher(tax *taxonomy.Taxonomy, req *requirement.JobRequirement) *KeywordMatcher {
	m := &KeywordMatcher{tagFactor: tax.TagWeightFactor}

	known := map[string]bool{}
	for _, kw := range tax.Keywords {
		weight := kw.Weight
		if req != nil {
			if w, ok := req.KeywordWeight(kw.Term.String()); ok {
				weight = w
			}
		}
		known[strings.ToLower(kw.Term.String())] = true
		m.entries = append(m.entries, keywordEntry{term: kw.Term, weight: weight, tier: kw.Level})
	}

	if req != nil {
		for _, name := range req.KeywordNames() {
			if known[name] {
				continue
			}
			w, _ := req.KeywordWeight(name)
			m.entries = append(m.entries, keywordEntry{term: textmatch.NewTerm(name), weight: w})
		}
	}

	return m
}

// Match returns every keyword found in text, highest tier first.
func (m *KeywordMatcher) Match(text string) []KeywordHit {
	found := m.locate(text)

	var hits []KeywordHit
	for i, e := range m.entries {
		if found[i] {
			hits = append(hits, KeywordHit{Keyword: e.term.String(), Weight: e.weight, Tier: e.tier})
		}
	}
	return hits
}

// MatchWithTags matches the narrative and the claimed tags together.
// Keywords present only in the tags are marked TagOnly.
func (m *KeywordMatcher) MatchWithTags(narrative, tags string) []KeywordHit {
	inNarrative := m.locate(narrative)
	inTags := m.locate(tags)

	var hits []KeywordHit
	for i, e := range m.entries {
		switch {
		case inNarrative[i]:
			hits = append(hits, KeywordHit{Keyword: e.term.String(), Weight: e.weight, Tier: e.tier})
		case inTags[i]:
			hits = append(hits, KeywordHit{Keyword: e.term.String(), Weight: e.weight, Tier: e.tier, TagOnly: true})
		}
	}
	return hits
}

// locate reports which entries occur in text. An occurrence lying inside an
// occurrence of a longer keyword does not count, so "TensorRT-LLM" is not
// also "TensorRT". Equal occurrences go to the first entry.
func (m *KeywordMatcher) locate(text string) map[int]bool {
	spans := make(map[int][][2]int)
	for i, e := range m.entries {
		if s := e.term.Spans(text); len(s) > 0 {
			spans[i] = s
		}
	}

	found := make(map[int]bool, len(spans))
	for i, own := range spans {
		for _, s := range own {
			if !shadowed(spans, i, s) {
				found[i] = true
				break
			}
		}
	}
	return found
}

func shadowed(spans map[int][][2]int, self int, s [2]int) bool {
	for j, other := range spans {
		if j == self {
			continue
		}
		for _, o := range other {
			if o[0] > s[0] || s[1] > o[1] {
				continue
			}
			if o[1]-o[0] > s[1]-s[0] || j < self {
				return true
			}
		}
	}
	return false
}

// StackScore sums hit weights, counting tag-only hits at the reduced factor.
func (m *KeywordMatcher) StackScore(hits []KeywordHit) float64 {
	var total float64
	for _, h := range hits {
		if h.TagOnly {
			total += h.Weight * m.tagFactor
			continue
		}
		total += h.Weight
	}
	return total
}

// HighestTier returns the highest tier among hits, 0 when none carries a tier.
func HighestTier(hits []KeywordHit) int {
	best := 0
	for _, h := range hits {
		if !h.TagOnly && h.Tier > best {
			best = h.Tier
		}
	}
	return best
}

func evidenceLine(h KeywordHit) string {
	label := "Stack"
	if h.Tier > 0 {
		label = fmt.Sprintf("Tier %d", h.Tier)
	}
	if h.TagOnly {
		return fmt.Sprintf("[%s] %s (tag)", label, h.Keyword)
	}
	return fmt.Sprintf("[%s] %s", label, h.Keyword)
}
