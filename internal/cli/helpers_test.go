package cli

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quiver/internal/cache"
	"github.com/roach88/quiver/internal/model"
	"github.com/roach88/quiver/internal/store"
)

// tempDB points the CLI at a fresh database via the environment and
// returns its path.
func tempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	t.Setenv("QUIVER_DB_PATH", path)
	return path
}

// seedCache populates the database at dbPath directly, optionally marking
// everything stale so refresh commands have work to do.
func seedCache(t *testing.T, dbPath string, stale bool, inputs ...model.ProjectInput) {
	t.Helper()
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	m := cache.NewManager(s, cache.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err = m.PopulateProjects(t.Context(), inputs)
	require.NoError(t, err)
	if stale {
		require.NoError(t, m.InvalidateAll(t.Context()))
	}
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func demoProject(path string) model.ProjectInput {
	return model.ProjectInput{
		ID:   "proj-1",
		Name: "Demo",
		Path: path,
		Artifacts: []model.ArtifactInput{
			{ID: "art-1", Name: "skill-x", Type: "skill", DeployedVersion: "1.0.0"},
		},
	}
}
