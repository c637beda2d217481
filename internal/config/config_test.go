package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.True(t, cfg.Data.Watch)
	assert.Equal(t, "./data/City_Boundaries.shp", cfg.Boundary.ShapefilePath)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "./crimemap.db", cfg.Store.SQLitePath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 20, cfg.Server.RateBurst)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
data:
  dir: /var/lib/crimemap
boundary:
  shapefile_path: /var/lib/crimemap/City_Boundaries.shp
  name_field: CITY_LABEL
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
  rate_limit: 5
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/crimemap", cfg.Data.Dir)
	assert.Equal(t, "CITY_LABEL", cfg.Boundary.NameField)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Server.RateLimit, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, "./crimemap.db", cfg.Store.SQLitePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CRIMEMAP_STORE_DRIVER", "postgres")
	t.Setenv("CRIMEMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("CRIMEMAP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validServe() *Config {
	return &Config{
		Data:     DataConfig{Dir: "./data"},
		Boundary: BoundaryConfig{ShapefilePath: "./data/City_Boundaries.shp"},
		Store:    StoreConfig{Driver: "none"},
		Server:   ServerConfig{Port: 8080},
	}
}

func TestValidateServe(t *testing.T) {
	assert.NoError(t, validServe().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validServe()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMissingPaths(t *testing.T) {
	cfg := validServe()
	cfg.Data.Dir = ""
	cfg.Boundary.ShapefilePath = ""

	err := cfg.Validate("attribute")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data.dir is required")
	assert.Contains(t, err.Error(), "boundary.shapefile_path is required")
}

func TestValidateStoreDrivers(t *testing.T) {
	cfg := validServe()

	cfg.Store = StoreConfig{Driver: "sqlite"}
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.sqlite_path")

	cfg.Store = StoreConfig{Driver: "postgres"}
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store = StoreConfig{Driver: "mysql"}
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")

	cfg.Store = StoreConfig{Driver: "sqlite", SQLitePath: "./x.db"}
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validServe().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
