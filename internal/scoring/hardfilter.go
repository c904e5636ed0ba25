package scoring

import (
	"fmt"
	"strings"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/taxonomy"
	"github.com/spigell/cv-screener/internal/textmatch"
)

// EvaluateHardFilter checks every must-have entry of req against the skill
// tags and free text of record. An entry is satisfied when any alternative
// of its "A|B" group, or a taxonomy synonym of one, is present. All failures
// are reported in requirement order.
func EvaluateHardFilter(record *candidate.Record, req *requirement.JobRequirement, tax *taxonomy.Taxonomy) (bool, []string) {
	if req == nil {
		return true, nil
	}

	text := ""
	if record != nil {
		text = record.FreeText()
	}

	var failures []string
	for _, group := range req.MustHaveGroups() {
		var terms textmatch.Terms
		for _, alt := range group {
			terms = append(terms, tax.Expand(alt)...)
		}
		if terms.Any(text) {
			continue
		}

		if len(group) == 1 {
			failures = append(failures, fmt.Sprintf("missing required skill: %s", group[0]))
			continue
		}
		failures = append(failures, fmt.Sprintf("missing required skill: one of %s", strings.Join(group, ", ")))
	}

	return len(failures) == 0, failures
}
