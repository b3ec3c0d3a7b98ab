package setup_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mnhsh/digital-capsule/internal/config"
	"github.com/mnhsh/digital-capsule/internal/database"
	"github.com/mnhsh/digital-capsule/internal/setup"
	"github.com/mnhsh/digital-capsule/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSourceMissingConfiguration(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"firebase", "redis", "postgres", "sqlite", "static"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			src, closer, err := setup.NewSource(config.Store{Driver: driver, Path: "/capsuleEntries"}, zap.NewNop())
			require.NoError(t, err)
			assert.Nil(t, closer)

			_, err = src.Subscribe(t.Context())
			require.ErrorIs(t, err, source.ErrConfigurationMissing)
		})
	}
}

func TestNewSourceUnknownDriver(t *testing.T) {
	t.Parallel()

	_, _, err := setup.NewSource(config.Store{Driver: "mongo"}, zap.NewNop())
	require.ErrorIs(t, err, setup.ErrUnknownDriver)
}

func TestNewSourceDrivers(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	var port int
	_, err := fmt.Sscanf(mr.Port(), "%d", &port)
	require.NoError(t, err)

	src, closer, err := setup.NewSource(config.Store{
		Driver: "Redis",
		Path:   "/capsuleEntries",
		Redis:  config.Redis{Host: mr.Host(), Port: port},
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.IsType(t, &source.Redis{}, src)
	require.NoError(t, closer())

	src, closer, err = setup.NewSource(config.Store{
		Driver: "sqlite",
		SQL:    config.SQL{DSN: "file:setup?mode=memory&cache=shared"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &database.SQLStore{}, src)
	require.NoError(t, closer())

	src, _, err = setup.NewSource(config.Store{
		Driver:   "firebase",
		Path:     "/capsuleEntries",
		Firebase: config.Firebase{DatabaseURL: "https://demo-default-rtdb.firebaseio.com"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &source.Firebase{}, src)
}

func TestInitializeApp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entries := filepath.Join(dir, "entries.json")
	require.NoError(t, os.WriteFile(entries, []byte(`{"a":{"message":"hi","timestamp":1}}`), 0o600))

	cfgPath := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`version = 1

[reveal]
at = "2030-01-01T00:00:00Z"
timezone = "UTC"

[store]
driver = "static"
file = %q
`, entries)), 0o600))

	app, err := setup.InitializeApp(t.Context(), cfgPath)
	require.NoError(t, err)
	defer app.Cleanup()

	assert.Equal(t, cfgPath, app.ConfigPath)
	assert.True(t, app.Target.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "UTC", app.TimeFormat.Location.String())
	assert.Nil(t, app.Resolver)
	assert.Len(t, app.RendererOptions(), 1)

	got, err := source.Snapshot(t.Context(), app.Source)
	require.NoError(t, err)
	assert.Equal(t, "hi", got["a"].Message)
}

func TestInitializeAppBadTimezone(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`version = 1

[reveal]
timezone = "Mars/Olympus"

[store]
driver = "static"
`), 0o600))

	_, err := setup.InitializeApp(t.Context(), cfgPath)
	require.Error(t, err)
}
