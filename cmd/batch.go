package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/export"
	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/results"
	"github.com/spigell/cv-screener/internal/scoring"
)

const (
	PromptYes                 = "Yes"
	PromptNo                  = "No"
	PromptBack                = "back"
	PromptFunnelReport        = "Show filter report"
	PromptCandidatesToFile    = "Dump candidates to file"
	PromptAppendToExcludeFile = "Append all candidates to exclude file"

	excludeReason = "excluded from batch"
)

var errExit = errors.New("exit requested")

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-dir>",
	Short: "Score every candidate of a pool and store the ranked results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		batch(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before scoring")
	batchCmd.Flags().BoolP("rescore", "f", false, "score candidates again even if a result is stored")
	batchCmd.Flags().StringP("exclude-file", "e", "", "special file with candidates to exclude. Default is unset.")
	batchCmd.Flags().String("xlsx", "", "write the ranked results of this run to an excel workbook")
	batchCmd.Flags().IntP("workers", "w", 0, "number of candidates scored concurrently")

	viper.BindPFlag("exclude-file", batchCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("workers", batchCmd.Flags().Lookup("workers"))
}

func batch(cmd *cobra.Command, path string) {
	ctx := context.Background()

	runID := uuid.New().String()
	logger := newLogger(runID)

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-screener", zap.String("version", version), zap.Int("workers", config.Workers))

	pool, err := loadPool(path, logger)
	if err != nil {
		logger.Fatal("loading candidates", zap.Error(err))
	}

	store, err := results.NewStore(config.ResultsDir)
	if err != nil {
		logger.Fatal("opening results store", zap.Error(err))
	}

	rescore, _ := cmd.Flags().GetBool("rescore")
	steps := filtering.Default()
	filterCfg := &filtering.Config{ExcludeFile: config.ExcludeFile, Rescore: rescore}

	pool, err = filtering.Run(ctx, filterCfg, filtering.Deps{Logger: logger, Scored: store}, steps, pool)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if pool.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates left after filters"))
		return
	}

	pipeline, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if !autoApprove {
		if err := confirm(logger, config, steps, pool); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	started := time.Now()
	breakdowns, err := scorePool(ctx, pipeline, store, pool, runID, config.Workers, logger)
	if err != nil {
		logger.Fatal("batch scoring failed", zap.Error(err))
	}

	ranked := scoring.Rank(breakdowns)
	for i, b := range ranked {
		logger.Info("ranked candidate",
			zap.Int("rank", i+1),
			zap.String("candidate_id", b.CandidateID),
			zap.String("candidate", b.CandidateName),
			zap.Float64("overall_score", b.OverallScore),
			zap.Bool("passed_hard_filter", b.PassedHardFilter),
			zap.Strings("warnings", b.Warnings),
		)
	}

	logger.Info("batch finished",
		zap.Int("scored", len(ranked)),
		zap.Duration("took", time.Since(started)),
		zap.String("results_dir", store.Dir()),
	)

	if xlsx := cmd.Flag("xlsx").Value.String(); xlsx != "" {
		written, err := export.Workbook(xlsx, export.Report{
			Requirement: pipeline.Requirement().Title,
			RunID:       runID,
			GeneratedAt: time.Now().UTC(),
			Breakdowns:  ranked,
		})
		if err != nil {
			logger.Fatal("exporting workbook", zap.Error(err))
		}
		logger.Info("workbook written", zap.String("filename", written))
	}
}

// confirm asks the operator before spending collaborator quota. It returns
// nil once the operator agrees to proceed.
func confirm(logger *zap.Logger, config *Config, steps []filtering.Filter, pool *candidate.Pool) error {
	items := []string{PromptYes, PromptNo, PromptFunnelReport, PromptCandidatesToFile}
	if config.ExcludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Score %d candidates?", pool.Len()),
		Items: items,
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptYes:
			return nil
		case PromptNo:
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return errExit
		case PromptFunnelReport:
			for _, s := range filtering.Describe(steps) {
				logger.Info("filter",
					zap.String("name", s.Name),
					zap.Bool("enabled", s.Enabled),
					zap.String("reason", s.Reason),
					zap.Any("details", s.Details),
				)
			}
		case PromptCandidatesToFile:
			filename, err := pool.DumpToTmpFile()
			if err != nil {
				return fmt.Errorf("dump candidates to file: %w", err)
			}
			logger.Info("dumping candidates to file", zap.String("filename", filename))
		case PromptAppendToExcludeFile:
			if err := appendToExcludeFile(config.ExcludeFile, pool); err != nil {
				return err
			}
			logger.Info("appended to exclude file", zap.String("filename", config.ExcludeFile))
			return errExit
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func appendToExcludeFile(path string, pool *candidate.Pool) error {
	excluded, err := candidate.LoadExcluded(path)
	if errors.Is(err, fs.ErrNotExist) {
		excluded, err = &candidate.ExcludedCandidates{}, nil
	}
	if err != nil {
		return err
	}

	excluded.Append(pool.ToExcluded(excludeReason))
	return excluded.ToFile(path)
}

// scorePool scores candidates concurrently and stores every result. Results
// keep the order of the pool.
func scorePool(ctx context.Context, pipeline *scoring.Pipeline, store *results.Store, pool *candidate.Pool, runID string, workers int, logger *zap.Logger) ([]*scoring.ScoreBreakdown, error) {
	breakdowns := make([]*scoring.ScoreBreakdown, pool.Len())
	title := pipeline.Requirement().Title

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, record := range pool.Items {
		g.Go(func() error {
			b, err := pipeline.Score(ctx, record)
			if err != nil {
				logger.Error("scoring candidate", zap.String("candidate_id", record.ID), zap.Error(err))
				return nil
			}

			env := &results.Envelope{
				RunID:       runID,
				ScoredAt:    time.Now().UTC(),
				Requirement: title,
				Breakdown:   b,
			}
			if err := store.Save(env); err != nil {
				return fmt.Errorf("saving result of %s: %w", record.ID, err)
			}

			breakdowns[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return breakdowns, nil
}
