package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/x/classfile/classfiletest"
)

var (
	javaTestdata = filepath.Join("x", "java", "testdata")
	daoRules     = filepath.Join("rulesdsl", "testdata", "dao_rules.yaml")
)

func archcheck(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func scenarioArgs(extra ...string) []string {
	args := []string{
		"-path", filepath.Join(javaTestdata, "com", "tngtech"),
		"-path", filepath.Join(javaTestdata, "javax"),
		"-rules", daoRules,
		"-log-level", "error",
	}
	return append(args, extra...)
}

func TestRun_TextReport(t *testing.T) {
	code, stdout, _ := archcheck(t, scenarioArgs()...)
	assert.Equal(t, exitViolations, code)
	assert.Contains(t, stdout, "Architecture Violation [Priority: HIGH] - Rule 'classes that are no DAOs should never access the EntityManager' was violated (2 times):")
	assert.Contains(t, stdout, "(ServiceViolatingDaoRules.java:24)")
	assert.Contains(t, stdout, "(ServiceViolatingDaoRules.java:25)")
	assert.True(t, strings.HasSuffix(stdout, "3 rules checked, 2 violated, 4 violations\n"), stdout)
}

func TestRun_JSONLAndModelExport(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "violations.jsonl")
	modelOut := filepath.Join(dir, "model.jsonl")

	code, stdout, _ := archcheck(t, scenarioArgs("-format", "jsonl", "-out", out, "-export-model", modelOut)...)
	assert.Equal(t, exitViolations, code)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)

	data, err = os.ReadFile(modelOut)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Record":"TYPE"`)
	assert.Contains(t, string(data), `"Record":"DEPENDENCY"`)
}

func TestRun_Mermaid(t *testing.T) {
	code, stdout, _ := archcheck(t, scenarioArgs("-format", "mermaid")...)
	assert.Equal(t, exitViolations, code)
	assert.True(t, strings.HasPrefix(stdout, "<!DOCTYPE html>"))
	assert.Contains(t, stdout, "linkStyle ")
}

func TestRun_NoViolations(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rules:
  - id: dao-package
    quantifier: all
    that: {annotated_with: MyDao}
    should: {be_in_package: ..persistence..}
`), 0o644))

	code, stdout, _ := archcheck(t,
		"-rules", rules, "-log-level", "error",
		filepath.Join(javaTestdata, "com", "tngtech"))
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "1 rules checked, 0 violated, 0 violations\n", stdout)
}

func TestRun_ConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "archcheck.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
analysis:
  locations: [`+filepath.Join(javaTestdata, "com", "tngtech")+`, `+filepath.Join(javaTestdata, "javax")+`]
  workers: 2
rules:
  files: [`+daoRules+`]
logging:
  level: error
`), 0o644))

	code, stdout, _ := archcheck(t, "-config", cfg)
	assert.Equal(t, exitViolations, code)
	assert.Contains(t, stdout, "4 violations")
}

func TestRun_RuleErrorStillReports(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, "classes")
	files := classfiletest.Scenario()
	for name, data := range classfiletest.LinelessInterfaces() {
		files[name] = data
	}
	for name, data := range files {
		path := filepath.Join(classes, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rules:
  - id: dao-entity-manager
    quantifier: no
    that: {reside_in_package: ..service..}
    should:
      access_classes_that: {assignable_to: javax.persistence.EntityManager}
  - id: layering
    quantifier: no
    that: {reside_in_package: a.service}
    should:
      depend_on_classes_that: {reside_in_package: a.persistence}
`), 0o644))

	code, stdout, stderr := archcheck(t, "-rules", rules, "-log-level", "error", classes)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout, "was violated (2 times)")
	assert.Contains(t, stdout, "Evaluation error: ")
	assert.Contains(t, stdout, "(Svc.java:0)")
	assert.True(t, strings.HasSuffix(stdout, "2 rules checked, 1 violated, 2 violations\n"), stdout)
	assert.Contains(t, stderr, "rule evaluation failed")
}

func TestRun_Errors(t *testing.T) {
	t.Run("no locations", func(t *testing.T) {
		code, _, stderr := archcheck(t, "-rules", daoRules)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, "no locations")
	})

	t.Run("no rules", func(t *testing.T) {
		code, _, stderr := archcheck(t, javaTestdata)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, "no rule packs")
	})

	t.Run("bad format", func(t *testing.T) {
		code, _, stderr := archcheck(t, scenarioArgs("-format", "xml")...)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, `unknown output format "xml"`)
	})

	t.Run("bad flag", func(t *testing.T) {
		code, _, _ := archcheck(t, "-no-such-flag")
		assert.Equal(t, exitError, code)
	})

	t.Run("missing location", func(t *testing.T) {
		code, _, stderr := archcheck(t, "-rules", daoRules, filepath.Join(t.TempDir(), "missing"))
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, "no such file")
	})
}
