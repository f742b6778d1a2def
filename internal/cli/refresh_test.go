package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLockFile(t *testing.T, projectDir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, LockFileName), []byte(body), 0o644))
}

func TestRefreshAllFromLockFile(t *testing.T) {
	dbPath := tempDB(t)
	projectDir := t.TempDir()
	writeLockFile(t, projectDir, "artifacts:\n  art-1: 1.1.0\n")
	seedCache(t, dbPath, true, demoProject(projectDir))

	out, err := runCLI(t, "refresh", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, float64(1), data["projects_refreshed"])
	assert.Equal(t, float64(1), data["changes_detected"])
}

func TestRefreshTextOutput(t *testing.T) {
	dbPath := tempDB(t)
	projectDir := t.TempDir()
	writeLockFile(t, projectDir, "artifacts:\n  art-1: 1.1.0\n")
	seedCache(t, dbPath, true, demoProject(projectDir))

	out, err := runCLI(t, "refresh")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "refresh_text", []byte(out))
}

func TestRefreshSingleProjectIgnoresStaleness(t *testing.T) {
	dbPath := tempDB(t)
	projectDir := t.TempDir()
	writeLockFile(t, projectDir, "artifacts:\n  art-1: 2.0.0\n")
	// Not stale: populate just happened.
	seedCache(t, dbPath, false, demoProject(projectDir))

	out, err := runCLI(t, "refresh", "proj-1", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["projects_refreshed"])
	assert.Equal(t, float64(1), data["changes_detected"])
}

func TestRefreshMissingLockFileClearsStaleness(t *testing.T) {
	dbPath := tempDB(t)
	projectDir := t.TempDir() // no lock file
	seedCache(t, dbPath, true, demoProject(projectDir))

	out, err := runCLI(t, "refresh", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, float64(1), data["projects_refreshed"])
	assert.Equal(t, float64(0), data["changes_detected"])

	// The project is no longer stale.
	statusOut, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, statusOut, "Projects:           1 (0 stale)")
}

func TestRefreshFailureExitsNonZero(t *testing.T) {
	dbPath := tempDB(t)
	projectDir := t.TempDir()
	writeLockFile(t, projectDir, "artifacts: [broken\n")
	seedCache(t, dbPath, true, demoProject(projectDir))

	out, err := runCLI(t, "refresh")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "proj-1")
}

func TestRefreshRejectsIDWithAllFlag(t *testing.T) {
	tempDB(t)

	_, err := runCLI(t, "refresh", "proj-1", "--all")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not both")
}

func TestRefreshNothingStale(t *testing.T) {
	dbPath := tempDB(t)
	seedCache(t, dbPath, false, demoProject(t.TempDir()))

	out, err := runCLI(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Refreshed 0 project(s)")
}
