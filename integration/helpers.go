//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hochfrequenz/live-reporter/internal/fixture"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// FixturesDir returns the path to the fixtures directory
func FixturesDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(filename), "fixtures")
}

// RunFixture returns the path to the recorded sample run
func RunFixture(t *testing.T) string {
	t.Helper()
	return filepath.Join(FixturesDir(t), "run.jsonl")
}

// LoadRun loads the recorded sample run
func LoadRun(t *testing.T) []protocol.EnvelopeRaw {
	t.Helper()
	envs, err := fixture.Load(RunFixture(t))
	if err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	return envs
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml")
}

// createTestConfig writes a config that journals to dbPath
func createTestConfig(t *testing.T, dbPath string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[reporter]
hover_delay = "50ms"
tooltip_delay = "1500ms"

[web]
port = 18080
host = "127.0.0.1"

[journal]
enabled = true
database_path = "` + dbPath + `"
retention = "168h"
prune_cron = "0 3 * * *"
`

	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}
