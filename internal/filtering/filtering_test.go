package filtering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/candidate"
)

type stubScored struct {
	ids []string
	err error
}

func (s stubScored) ScoredIDs() ([]string, error) { return s.ids, s.err }

func pool() *candidate.Pool {
	return &candidate.Pool{Items: []*candidate.Record{
		{ID: "1", SourceCode: "A", Name: "First upload"},
		{ID: "2", Name: "No code"},
		{ID: "3"},
		{ID: "4", SourceCode: "A", Name: "Second upload"},
		{ID: "5", SourceCode: "B"},
	}}
}

func TestRunDefaultFunnel(t *testing.T) {
	t.Parallel()

	exclude := filepath.Join(t.TempDir(), "exclude.json")
	excluded := &candidate.ExcludedCandidates{Items: []*candidate.ExcludedCandidate{{ID: "5"}}}
	require.NoError(t, excluded.ToFile(exclude))

	core, logs := observer.New(zapcore.InfoLevel)
	deps := Deps{Logger: zap.New(core), Scored: stubScored{ids: []string{"2"}}}

	got, err := Run(context.Background(), &Config{ExcludeFile: exclude}, deps, Default(), pool())
	require.NoError(t, err)

	assert.Equal(t, []string{"4"}, got.IDs())
	assert.Equal(t, "Second upload", got.Items[0].Name)

	steps := logs.FilterMessage("filter step").All()
	require.Len(t, steps, 4)
	dropped := make(map[string]int64)
	for _, e := range steps {
		ctx := e.ContextMap()
		dropped[ctx["name"].(string)] = ctx["dropped"].(int64)
	}
	assert.Equal(t, map[string]int64{"junk": 1, "duplicates": 1, "exclude_file": 1, "already_scored": 1}, dropped)
}

func TestRescoreKeepsScoredCandidates(t *testing.T) {
	t.Parallel()

	steps := []Filter{NewAlreadyScored()}
	got, err := Run(context.Background(), &Config{Rescore: true}, Deps{}, steps, pool())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Len())

	status := Describe(steps)[0]
	assert.Equal(t, "rescore requested via flag", status.Reason)
	assert.Equal(t, "false", status.Details["skip_scored"])
}

func TestAlreadyScoredErrors(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), &Config{}, Deps{}, []Filter{NewAlreadyScored()}, pool())
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = Run(context.Background(), &Config{}, Deps{Scored: stubScored{err: boom}}, []Filter{NewAlreadyScored()}, pool())
	assert.ErrorIs(t, err, boom)
}

func TestExcludeFileErrors(t *testing.T) {
	t.Parallel()

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))

	_, err := Run(context.Background(), &Config{ExcludeFile: broken}, Deps{}, []Filter{NewExcludeFile()}, pool())
	assert.Error(t, err)

	got, err := Run(context.Background(), &Config{}, Deps{}, []Filter{NewExcludeFile()}, pool())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Len())
}

func TestDisableByName(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	steps := Default()
	DisableByName(steps, "junk", "testing")
	DisableByName(steps, "already_scored", "no store")

	got, err := Run(context.Background(), &Config{}, Deps{Logger: zap.New(core)}, steps, pool())
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4", "5"}, got.IDs())
	assert.Equal(t, 2, logs.FilterMessage("filter disabled").Len())

	statuses := Describe(steps)
	assert.False(t, statuses[0].Enabled)
	assert.Equal(t, "testing", statuses[0].Reason)
	assert.True(t, statuses[1].Enabled)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, &Config{}, Deps{}, []Filter{NewJunk()}, pool())
	assert.ErrorIs(t, err, context.Canceled)
}
