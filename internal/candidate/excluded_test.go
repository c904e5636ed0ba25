package candidate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExcludedEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	excluded, err := LoadExcluded(path)
	require.NoError(t, err)
	assert.Empty(t, excluded.IDs())
}

func TestExcludedRoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")

	pool := &Pool{Items: []*Record{{ID: "1", Name: "Ada"}, {ID: "2", SourceCode: "S-2"}}}
	excluded := &ExcludedCandidates{}
	excluded.Append(pool.ToExcluded("reviewed"))
	excluded.Append(pool.ToExcluded("reviewed twice"))
	require.NoError(t, excluded.ToFile(path))

	loaded, err := LoadExcluded(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, loaded.IDs())
	assert.Equal(t, "reviewed", loaded.Items[0].Reason)
	assert.Equal(t, "S-2", loaded.Items[1].SourceCode)

	// A shorter list must not leave trailing bytes of the previous content.
	loaded.Items = loaded.Items[:1]
	require.NoError(t, loaded.ToFile(path))
	again, err := LoadExcluded(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, again.IDs())
}

func TestLoadExcludedMissingFile(t *testing.T) {
	_, err := LoadExcluded(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
