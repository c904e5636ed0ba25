// Package judge asks a text-generation collaborator for the few judgments
// the deterministic scorers cannot make on their own and validates the
// answers before they reach a score.
package judge

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/utils"
)

//go:embed tier.md
var tierPrompt string

//go:embed complexity.md
var complexityPrompt string

const (
	defaultMaxLogLength  = 200
	defaultMaxInputRunes = 6000
	placeholder          = "{{EXPERIENCE}}"
	truncatedMarker      = "\n(truncated)"
)

// ErrUnparseable is returned when the collaborator answer holds no usable value.
var ErrUnparseable = errors.New("unparseable judgment")

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

type Judge struct {
	completer     ai.Completer
	logger        *zap.Logger
	maxLogLen     int
	maxInputRunes int
}

func New(completer ai.Completer, log *zap.Logger, maxLogLength int) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Judge{
		completer:     completer,
		logger:        logger.WithFields(log),
		maxLogLen:     maxLogLength,
		maxInputRunes: defaultMaxInputRunes,
	}
}

// Complexity returns the collaborator's complexity rating clamped to [0,1].
func (j *Judge) Complexity(ctx context.Context, experience string) (float64, error) {
	raw, err := j.ask(ctx, "complexity", complexityPrompt, experience)
	if err != nil {
		return 0, err
	}

	value := parseNumber(raw, "complexity", "score")
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("complexity: %w: %q", ErrUnparseable, utils.TruncateForLog(raw, j.maxLogLen))
	}

	return math.Max(0, math.Min(1, value)), nil
}

// Tier returns the collaborator's tier verdict clamped to 1..4.
func (j *Judge) Tier(ctx context.Context, experience string) (int, error) {
	raw, err := j.ask(ctx, "tier", tierPrompt, experience)
	if err != nil {
		return 0, err
	}

	value := parseNumber(raw, "tier", "level")
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("tier: %w: %q", ErrUnparseable, utils.TruncateForLog(raw, j.maxLogLen))
	}

	// Clamp before converting, huge values overflow int.
	return int(math.Round(math.Max(1, math.Min(4, value)))), nil
}

func (j *Judge) ask(ctx context.Context, kind, template, experience string) (string, error) {
	if j == nil || j.completer == nil {
		return "", ai.ErrDisabled
	}

	prompt := strings.ReplaceAll(template, placeholder, sanitizeExperience(experience, j.maxInputRunes))

	j.logger.Debug("judgment request",
		zap.String("kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(experience, j.maxLogLen)),
	)

	raw, err := j.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	j.logger.Debug("judgment response",
		zap.String("kind", kind),
		zap.String("response_preview", utils.TruncateForLog(raw, j.maxLogLen)),
	)

	return raw, nil
}

// sanitizeExperience keeps candidate text from posing as prompt structure:
// square brackets become parentheses, code fences are dropped and the text
// is cut to maxRunes.
func sanitizeExperience(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```", "")
	text = strings.NewReplacer("[", "(", "]", ")", "{{", "(", "}}", ")").Replace(text)

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		text = string([]rune(text)[:maxRunes]) + truncatedMarker
	}
	if text == "" {
		return "(empty)"
	}
	return text
}

// parseNumber reads the first of keys from a JSON answer, falling back to a
// bare number anywhere in the text. NaN means nothing usable was found.
func parseNumber(raw string, keys ...string) float64 {
	cleaned := extractJSON(raw)

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
		switch v := data.(type) {
		case map[string]any:
			for _, k := range keys {
				if f := coerceFloat(v[k]); !math.IsNaN(f) {
					return f
				}
			}
			return math.NaN()
		case float64:
			return v
		case string:
			cleaned = v
		}
	}

	if m := numberRe.FindString(cleaned); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Chatty models wrap the object in prose.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
