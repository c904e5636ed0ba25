package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/ai/judge"
	"github.com/spigell/cv-screener/internal/ai/lmstudio"
	"github.com/spigell/cv-screener/internal/candidate"
	"github.com/spigell/cv-screener/internal/requirement"
	"github.com/spigell/cv-screener/internal/scoring"
	"github.com/spigell/cv-screener/internal/secrets"
	"github.com/spigell/cv-screener/internal/taxonomy"
)

// collaborators are the external services the pipeline delegates to. Both
// stay nil for the "none" provider.
type collaborators struct {
	embedder ai.Embedder
	delegate scoring.Delegate
	provider string
	model    string
}

func newCollaborators(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*collaborators, error) {
	provider := ai.ProviderNone
	if cfg != nil {
		provider = strings.TrimSpace(strings.ToLower(cfg.Provider))
	}

	switch provider {
	case ai.ProviderNone:
		return &collaborators{provider: ai.ProviderNone}, nil
	case "", ai.ProviderGemini:
		gc := cfg.Gemini
		if gc == nil {
			gc = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: gc.APIKeyFile,
			Env:  "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
		}

		generator, err := gemini.NewGenerator(ctx, gemini.Options{
			APIKey:         apiKey,
			Model:          gc.Model,
			EmbeddingModel: gc.EmbeddingModel,
			MaxRetries:     gc.MaxRetries,
			MaxLogLength:   cfg.MaxLogLength,
		}, logger)
		if err != nil {
			return nil, err
		}

		return &collaborators{
			embedder: generator,
			delegate: judge.New(generator, logger, cfg.MaxLogLength),
			provider: ai.ProviderGemini,
			model:    generator.Model(),
		}, nil
	case ai.ProviderLMStudio:
		lc := cfg.LMStudio
		if lc == nil {
			lc = &LMStudioConfig{}
		}

		// A local server usually runs without authentication.
		var apiKey string
		if strings.TrimSpace(lc.APIKeyFile) != "" {
			key, err := secrets.Load(secrets.Source{Name: "lmstudio api key", File: lc.APIKeyFile})
			if err != nil {
				return nil, err
			}
			apiKey = key
		}

		client := lmstudio.New(lmstudio.Options{
			BaseURL:        lc.BaseURL,
			APIKey:         apiKey,
			Model:          lc.Model,
			EmbeddingModel: lc.EmbeddingModel,
			Temperature:    lc.Temperature,
			MaxTokens:      lc.MaxTokens,
			Timeout:        lc.Timeout,
		}, logger)

		return &collaborators{
			embedder: client,
			delegate: judge.New(client, logger, cfg.MaxLogLength),
			provider: ai.ProviderLMStudio,
			model:    lc.Model,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// newPipeline loads the requirement and taxonomy named by config and wires
// the scoring pipeline with the configured provider.
func newPipeline(ctx context.Context, config *Config, logger *zap.Logger) (*scoring.Pipeline, error) {
	if strings.TrimSpace(config.Requirement) == "" {
		return nil, fmt.Errorf("job requirement is not configured (use --requirement or the 'requirement' key)")
	}

	req, err := requirement.Load(config.Requirement)
	if err != nil {
		return nil, fmt.Errorf("loading job requirement: %w", err)
	}

	tax, err := taxonomy.Load(config.Taxonomy)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy: %w", err)
	}

	collab, err := newCollaborators(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building ai collaborators: %w", err)
	}

	logger.Info("pipeline ready",
		zap.String("requirement", req.Title),
		zap.String("taxonomy", tax.Source),
		zap.String("taxonomy_version", tax.Version),
		zap.String("provider", collab.provider),
		zap.String("model", collab.model),
	)

	return scoring.NewPipeline(req, tax, collab.embedder, collab.delegate, config.Scoring, logger)
}

// loadPool reads candidates from a file or a directory.
func loadPool(path string, logger *zap.Logger) (*candidate.Pool, error) {
	pool, err := candidate.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	logger.Info("getting candidates", zap.String("path", path), zap.Int("count", pool.Len()))
	return pool, nil
}
