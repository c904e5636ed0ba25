package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/candidate"
)

const rescoreFlagSetMsg = "rescore flag is set"

// toggle carries the enable state shared by every step.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

type junkFilter struct {
	toggle
}

// NewJunk creates a filter that removes records with neither a name nor a source code.
// Such records come from documents the upstream parser could not read.
func NewJunk() Filter {
	return &junkFilter{}
}

func (f *junkFilter) Name() string { return "junk" }

func (f *junkFilter) Validate(*Config) error { return nil }

func (f *junkFilter) Apply(_ context.Context, deps Deps, p *candidate.Pool) (*candidate.Pool, Step, error) {
	initial := p.Len()
	removed := p.RemoveWhere(func(r *candidate.Record) bool {
		return strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.SourceCode) == ""
	})
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding unparseable candidates",
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *junkFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

type duplicatesFilter struct {
	toggle
}

// NewDuplicates creates a filter that keeps only the last record per source code.
// Records without a source code are keyed by id.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Validate(*Config) error { return nil }

func (f *duplicatesFilter) Apply(_ context.Context, deps Deps, p *candidate.Pool) (*candidate.Pool, Step, error) {
	initial := p.Len()

	last := make(map[string]*candidate.Record, initial)
	for _, r := range p.Items {
		last[dedupKey(r)] = r
	}

	removed := p.RemoveWhere(func(r *candidate.Record) bool {
		return last[dedupKey(r)] != r
	})
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding duplicated candidates",
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *duplicatesFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

func dedupKey(r *candidate.Record) string {
	if code := strings.TrimSpace(r.SourceCode); code != "" {
		return "code:" + code
	}
	return "id:" + strings.TrimSpace(r.ID)
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes candidates listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, p *candidate.Pool) (*candidate.Pool, Step, error) {
	initial := p.Len()
	if f.path == "" {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	excluded, err := candidate.LoadExcluded(f.path)
	if err != nil {
		return p, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	removed := p.Exclude(excluded.IDs())
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type alreadyScoredFilter struct {
	toggle
	rescore bool
}

// NewAlreadyScored creates a filter that skips candidates with a stored result.
func NewAlreadyScored() Filter {
	return &alreadyScoredFilter{}
}

func (f *alreadyScoredFilter) Name() string { return "already_scored" }

func (f *alreadyScoredFilter) Validate(cfg *Config) error {
	f.rescore = cfg != nil && cfg.Rescore
	return nil
}

func (f *alreadyScoredFilter) Apply(_ context.Context, deps Deps, p *candidate.Pool) (*candidate.Pool, Step, error) {
	initial := p.Len()
	if f.rescore {
		if deps.Logger != nil {
			deps.Logger.Info("ignoring already scored candidates", zap.String("reason", rescoreFlagSetMsg))
		}
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	if deps.Scored == nil {
		return p, Step{}, fmt.Errorf("results store is required")
	}

	scored, err := deps.Scored.ScoredIDs()
	if err != nil {
		return p, Step{}, fmt.Errorf("listing scored candidates: %w", err)
	}

	removed := p.Exclude(scored)
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding already scored candidates",
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *alreadyScoredFilter) Status() Status {
	details := map[string]string{
		"skip_scored": strconv.FormatBool(!f.rescore),
	}
	reason := f.reason
	if f.rescore && reason == "" {
		reason = "rescore requested via flag"
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: reason, Details: details}
}
