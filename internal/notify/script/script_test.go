package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/internal/model"
)

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func TestRunJavaScriptReturnsTrue(t *testing.T) {
	path := writeScript(t, "check.js", `input.monitor === "usdc-transfers"`)
	r := New()
	ok, err := r.Run(context.Background(), &model.ScriptConfig{Path: path, Language: "javascript"}, model.MatchRecord{Monitor: "usdc-transfers"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunJavaScriptReturnsFalse(t *testing.T) {
	path := writeScript(t, "check.js", `input.monitor === "other"`)
	r := New()
	ok, err := r.Run(context.Background(), &model.ScriptConfig{Path: path, Language: "javascript"}, model.MatchRecord{Monitor: "usdc-transfers"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunBashLastLineTrue(t *testing.T) {
	path := writeScript(t, "check.sh", "#!/bin/sh\necho debug\necho TRUE\n")
	r := New()
	ok, err := r.Run(context.Background(), &model.ScriptConfig{Path: path, Language: "bash"}, model.MatchRecord{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseVerdictRejectsGarbageLastLine(t *testing.T) {
	_, err := parseVerdict("debug line\nnotaboolean\n")
	assert.Error(t, err)
}

func TestParseVerdictRejectsEmptyOutput(t *testing.T) {
	_, err := parseVerdict("   \n")
	assert.Error(t, err)
}

func TestInterpreterForPython(t *testing.T) {
	name, args := interpreterFor("python", "/tmp/check.py")
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{"/tmp/check.py"}, args)
}

func TestInterpreterForDefaultsToShell(t *testing.T) {
	name, args := interpreterFor("bash", "/tmp/check.sh")
	assert.Equal(t, "sh", name)
	assert.Equal(t, []string{"/tmp/check.sh"}, args)
}
