package scoring

import (
	"github.com/spigell/cv-screener/internal/taxonomy"
)

// StackLevel is the highest matched level of one engineering dimension.
type StackLevel struct {
	Level    int      `json:"level"`
	Points   float64  `json:"points"`
	Keywords []string `json:"keywords,omitempty"`
}

type EngineeringDetail struct {
	Score    float64    `json:"score"`
	Maturity float64    `json:"maturity"`
	Backend  StackLevel `json:"backend"`
	Database StackLevel `json:"database"`
	Frontend StackLevel `json:"frontend"`
}

// EvaluateEngineering grades backend, database and frontend maturity from
// free text. Each dimension takes its highest matched level.
func EvaluateEngineering(tax *taxonomy.Taxonomy, text string) EngineeringDetail {
	rules := tax.Engineering

	detail := EngineeringDetail{
		Backend:  evaluateStack(rules.Backend, text),
		Database: evaluateStack(rules.Database, text),
		Frontend: evaluateStack(rules.Frontend, text),
	}

	m := detail.Backend.Points + detail.Database.Points + detail.Frontend.Points
	m = min(m, rules.Cap)
	detail.Maturity = round2(m)
	if rules.Cap > 0 {
		detail.Score = round2(min(m/rules.Cap, 1) * 100)
	}

	return detail
}

func evaluateStack(stack taxonomy.Stack, text string) StackLevel {
	for i := len(stack.Levels) - 1; i >= 0; i-- {
		found := stack.Levels[i].Matches(text)
		if len(found) == 0 {
			continue
		}

		level := i + 1
		out := StackLevel{Level: level, Points: stack.Points[level]}
		for _, t := range found {
			out.Keywords = append(out.Keywords, t.String())
		}
		return out
	}

	return StackLevel{Points: stack.Points[0]}
}
