package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/results"
)

var scoreCmd = &cobra.Command{
	Use:   "score <candidate.json>",
	Short: "Score one candidate and print the scorecard",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		score(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("id", "", "candidate id to score when the file holds several records")
	scoreCmd.Flags().Bool("output-json", false, "print the full breakdown as json instead of the markdown analysis")
	scoreCmd.Flags().Bool("save", false, "store the result in the results directory")
}

func score(cmd *cobra.Command, path string) {
	ctx := context.Background()

	logger := newLogger("")

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	pool, err := loadPool(path, logger)
	if err != nil {
		logger.Fatal("loading candidates", zap.Error(err))
	}

	record, err := pickRecord(pool, cmd.Flag("id").Value.String())
	if err != nil {
		logger.Fatal("selecting candidate", zap.Error(err))
	}

	pipeline, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	breakdown, err := pipeline.Score(ctx, record)
	if err != nil {
		logger.Fatal("scoring candidate", zap.Error(err))
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		store, err := results.NewStore(config.ResultsDir)
		if err != nil {
			logger.Fatal("opening results store", zap.Error(err))
		}
		env := &results.Envelope{
			RunID:       uuid.New().String(),
			ScoredAt:    time.Now().UTC(),
			Requirement: pipeline.Requirement().Title,
			Breakdown:   breakdown,
		}
		if err := store.Save(env); err != nil {
			logger.Fatal("saving result", zap.Error(err))
		}
		logger.Info("result saved", zap.String("dir", store.Dir()))
	}

	if asJSON, _ := cmd.Flags().GetBool("output-json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(breakdown); err != nil {
			logger.Fatal("encoding breakdown", zap.Error(err))
		}
		return
	}

	fmt.Println(breakdown.AnalysisText)
}

// pickRecord returns the record with id, or the only record of the pool.
func pickRecord(pool *candidate.Pool, id string) (*candidate.Record, error) {
	if id != "" {
		if r := pool.FindByID(id); r != nil {
			return r, nil
		}
		return nil, fmt.Errorf("there is no candidate with id %s", id)
	}

	switch pool.Len() {
	case 0:
		return nil, fmt.Errorf("no candidates found")
	case 1:
		return pool.Items[0], nil
	default:
		return nil, fmt.Errorf("%d candidates found, choose one with --id (ids: %v)", pool.Len(), pool.IDs())
	}
}
