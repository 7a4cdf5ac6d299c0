package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionQueriesCarryMarkers(t *testing.T) {
	violations, err := lint([]string{filepath.Join("..", "..", "sqlinline")})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const QOne = `--sql 3f9b2c7e-1d4a-4c8e-9f61-7a2e5b0d9c34\nselect 1;`\n\n" +
		"const QTwo = `--sql 3f9b2c7e-1d4a-4c8e-9f61-7a2e5b0d9c34\ndelete from t;`\n\n" +
		"const QThree = \"update t set a = 1\"\n\n" +
		"const Greeting = \"hello\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "q.go"), []byte(src), 0o600))

	violations, err := lint([]string{dir})
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, "QTwo", violations[0].name)
	assert.Contains(t, violations[0].message, "already used by QOne")
	assert.Equal(t, "QThree", violations[1].name)
	assert.Contains(t, violations[1].message, "missing or invalid")
}

func TestLintMissingTarget(t *testing.T) {
	_, err := lint([]string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}
