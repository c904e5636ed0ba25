package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/scoring"
)

const (
	app = "cv-screener"

	defaultWorkers    = 4
	defaultResultsDir = "results"
)

type Config struct {
	Requirement string          `mapstructure:"requirement"`
	Taxonomy    string          `mapstructure:"taxonomy"`
	ResultsDir  string          `mapstructure:"results-dir"`
	ExcludeFile string          `mapstructure:"exclude-file"`
	Workers     int             `mapstructure:"workers"`
	Scoring     scoring.Options `mapstructure:"scoring"`
	AI          *AIConfig       `mapstructure:"ai"`
}

type AIConfig struct {
	Provider     string          `mapstructure:"provider"`
	MaxLogLength int             `mapstructure:"max-log-length"`
	Gemini       *GeminiConfig   `mapstructure:"gemini"`
	LMStudio     *LMStudioConfig `mapstructure:"lmstudio"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
}

type LMStudioConfig struct {
	BaseURL        string        `mapstructure:"base-url"`
	APIKeyFile     string        `mapstructure:"api-key-file"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding-model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max-tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-screener scores resumes against a job requirement and ranks the candidates",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("workers", "CV_SCREENER_WORKERS"); err != nil {
		log.Fatalf("binding CV_SCREENER_WORKERS environment variable: %v", err)
	}

	viper.SetDefault("workers", defaultWorkers)
	viper.SetDefault("results-dir", defaultResultsDir)
	viper.SetDefault("ai.provider", "gemini")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("requirement", "r", "", "job requirement document (yaml or json)")
	rootCmd.PersistentFlags().String("taxonomy", "", "taxonomy file overriding the builtin tables")
	rootCmd.PersistentFlags().String("results-dir", "", "directory with stored scoring results (default is ./results)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("requirement", rootCmd.PersistentFlags().Lookup("requirement"))
	viper.BindPFlag("taxonomy", rootCmd.PersistentFlags().Lookup("taxonomy"))
	viper.BindPFlag("results-dir", rootCmd.PersistentFlags().Lookup("results-dir"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	// The version command never needs a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	err := viper.ReadInConfig()
	if err == nil {
		return
	}

	// Flags and environment are enough when no default config file exists.
	var notFound viper.ConfigFileNotFoundError
	if cfgFile == "" && errors.As(err, &notFound) {
		return
	}

	// We can't proceed if the config file parsed with error.
	log.Fatal(err)
}

// newLogger builds the command logger. A non-empty runID tags every entry.
func newLogger(runID string) *zap.Logger {
	l, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: viper.GetString("log-file"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	if runID != "" {
		return logger.WithRun(l, runID)
	}
	return l
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{Provider: viper.GetString("ai.provider")}
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}

	return config, nil
}
