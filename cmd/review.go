package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/export"
	"github.com/spigell/cv-screener/internal/results"
	"github.com/spigell/cv-screener/internal/scoring"
)

const PromptExportAll = "Export all to excel"

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse stored scorecards interactively",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().String("id", "", "print the scorecard of one candidate and exit")
	reviewCmd.Flags().String("xlsx", "ranking.xlsx", "workbook written by the export action")
}

func review(cmd *cobra.Command) {
	logger := newLogger("")

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := results.NewStore(config.ResultsDir)
	if err != nil {
		logger.Fatal("opening results store", zap.Error(err))
	}

	if id := cmd.Flag("id").Value.String(); id != "" {
		env, err := store.Load(id)
		if err != nil {
			logger.Fatal("loading result", zap.Error(err))
		}
		fmt.Println(renderReview(env.Breakdown))
		return
	}

	envs, err := store.List()
	if err != nil {
		logger.Fatal("listing results", zap.Error(err))
	}
	if len(envs) == 0 {
		logger.Info("exiting", zap.String("reason", "no stored results"), zap.String("dir", store.Dir()))
		return
	}

	breakdowns := make([]*scoring.ScoreBreakdown, 0, len(envs))
	for _, env := range envs {
		breakdowns = append(breakdowns, env.Breakdown)
	}
	ranked := scoring.Rank(breakdowns)

	labels := make([]string, 0, len(ranked)+2)
	for i, b := range ranked {
		labels = append(labels, reviewLabel(i+1, b))
	}
	labels = append(labels, PromptExportAll, PromptBack)

	for {
		selector := promptui.Select{
			Label: "Choose a candidate and press ENTER",
			Items: labels,
			Size:  15,
		}

		idx, selected, err := selector.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		switch selected {
		case PromptBack:
			return
		case PromptExportAll:
			written, err := export.Workbook(cmd.Flag("xlsx").Value.String(), export.Report{
				Requirement: envs[0].Requirement,
				RunID:       envs[0].RunID,
				GeneratedAt: time.Now().UTC(),
				Breakdowns:  ranked,
			})
			if err != nil {
				logger.Fatal("exporting workbook", zap.Error(err))
			}
			logger.Info("workbook written", zap.String("filename", written))
		default:
			fmt.Println(renderReview(ranked[idx]))
		}
	}
}

func reviewLabel(rank int, b *scoring.ScoreBreakdown) string {
	name := b.CandidateName
	if name == "" {
		name = "-"
	}
	filter := ""
	if !b.PassedHardFilter {
		filter = " [hard filter failed]"
	}
	return fmt.Sprintf("%d. %s %s / %.1f%s", rank, b.CandidateID, name, b.OverallScore, filter)
}

// renderReview appends strengths, gaps and interview suggestions to the
// markdown analysis.
func renderReview(b *scoring.ScoreBreakdown) string {
	var sb strings.Builder
	sb.WriteString(b.AnalysisText)

	sections := []struct {
		title string
		items []string
	}{
		{"Strengths", b.Strengths},
		{"Gaps", b.Gaps},
		{"Interview suggestions", b.InterviewSuggestions},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n\n**%s**\n", s.title)
		for _, item := range s.items {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}
	return sb.String()
}
