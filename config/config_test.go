package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	assert.Equal(t, 50*time.Millisecond, c.Analysis.RetryDelay)
	assert.Equal(t, OutputText, c.Output.Format)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
analysis:
  locations: [build/classes, lib/persistence.jar]
  packages:
    include: [com.tngtech.archunit.example]
    exclude: [com.tngtech.archunit.example.generated]
  workers: 4
  retry_delay: 200ms
rules:
  files: [rules/dao.yaml]
logging:
  level: debug
output:
  format: jsonl
  path: violations.jsonl
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"build/classes", "lib/persistence.jar"}, c.Analysis.Locations)
	assert.Equal(t, []string{"com.tngtech.archunit.example"}, c.Analysis.Packages.Include)
	assert.Equal(t, []string{"com.tngtech.archunit.example.generated"}, c.Analysis.Packages.Exclude)
	assert.Equal(t, 4, c.Analysis.Workers)
	assert.Equal(t, 200*time.Millisecond, c.Analysis.RetryDelay)
	assert.Equal(t, []string{"rules/dao.yaml"}, c.Rules.Files)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format, "unset keys keep their defaults")
	assert.Equal(t, OutputJSONL, c.Output.Format)
	assert.Equal(t, "violations.jsonl", c.Output.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "analysis:\n  locations: [a]\nlogging:\n  level: debug\n")
	t.Setenv("ARCHCHECK_LOCATIONS", "x, y ,")
	t.Setenv("ARCHCHECK_INCLUDE", "com.a")
	t.Setenv("ARCHCHECK_WORKERS", "3")
	t.Setenv("ARCHCHECK_RETRY_DELAY", "1s")
	t.Setenv("ARCHCHECK_RULES", "r1.yaml,r2.yaml")
	t.Setenv("ARCHCHECK_LOG_LEVEL", "warn")
	t.Setenv("ARCHCHECK_LOG_FORMAT", "json")
	t.Setenv("ARCHCHECK_OUTPUT_FORMAT", "mermaid")
	t.Setenv("ARCHCHECK_OUTPUT_PATH", "deps.html")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, c.Analysis.Locations)
	assert.Equal(t, []string{"com.a"}, c.Analysis.Packages.Include)
	assert.Equal(t, 3, c.Analysis.Workers)
	assert.Equal(t, time.Second, c.Analysis.RetryDelay)
	assert.Equal(t, []string{"r1.yaml", "r2.yaml"}, c.Rules.Files)
	assert.Equal(t, "warn", c.Logging.Level)
	assert.Equal(t, "json", c.Logging.Format)
	assert.Equal(t, OutputMermaid, c.Output.Format)
	assert.Equal(t, "deps.html", c.Output.Path)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "analysis: [not, a, map]\n"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "output:\n  format: xml\n"))
	assert.ErrorContains(t, err, `unknown output format "xml"`)

	t.Setenv("ARCHCHECK_WORKERS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "ARCHCHECK_WORKERS")
}
