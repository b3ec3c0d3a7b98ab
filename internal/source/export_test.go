package source_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mnhsh/digital-capsule/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `{
  "-Nab1": {"name": "Ana", "message": "see you", "timestamp": 1740792600000},
  "-Nab2": {"message": "no name", "fileUrl": "https://x/y.png", "fileType": "image/png"},
  "-Nab3": null,
  "-Nab4": 42
}`

func TestParseExport(t *testing.T) {
	t.Parallel()

	entries, err := source.ParseExport([]byte(export))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Ana", entries["-Nab1"].Name)
	assert.Equal(t, int64(1740792600000), entries["-Nab1"].Timestamp.SortKey())
	assert.Equal(t, "Anonymous", entries["-Nab2"].Author())
	assert.True(t, entries["-Nab2"].HasAttachment())

	_, err = source.ParseExport([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestLoadStatic(t *testing.T) {
	t.Parallel()

	_, err := source.LoadStatic("")
	require.ErrorIs(t, err, source.ErrConfigurationMissing)

	_, err = source.LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, source.ErrFetchFailure)

	path := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	src, err := source.LoadStatic(path)
	require.NoError(t, err)
	entries, err := source.Snapshot(t.Context(), src)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
