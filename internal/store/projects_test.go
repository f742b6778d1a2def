package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// openTestStore creates a store backed by a temp database file.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProject(id string) model.Project {
	return model.Project{
		ID:          id,
		Name:        "Project " + id,
		Path:        "/tmp/" + id,
		Status:      model.StatusActive,
		LastFetched: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestProject_CreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	want := testProject("proj-1")
	want.ArtifactCount = 3
	if err := s.CreateProject(ctx, want); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	got, err := s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject() failed: %v", err)
	}
	if got != want {
		t.Errorf("GetProject() = %+v, want %+v", got, want)
	}
}

func TestProject_GetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetProject(t.Context(), "absent")
	if !IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestProject_CreateDuplicateIDViolatesConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-1")); err != nil {
		t.Fatalf("first CreateProject() failed: %v", err)
	}
	err := s.CreateProject(ctx, testProject("proj-1"))
	if !IsConstraint(err) {
		t.Errorf("expected CONSTRAINT_VIOLATED, got %v", err)
	}
}

func TestProject_DuplicatePathViolatesConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-1")); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	dup := testProject("proj-2")
	dup.Path = "/tmp/proj-1" // same path as proj-1
	err := s.CreateProject(ctx, dup)
	if !IsConstraint(err) {
		t.Errorf("expected CONSTRAINT_VIOLATED, got %v", err)
	}
}

func TestProject_UpdateMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateProject(t.Context(), testProject("absent"))
	if !IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestProject_DeleteMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.DeleteProject(t.Context(), "absent")
	if !IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestProject_DeleteCascadesToArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-1")); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if err := s.CreateArtifact(ctx, model.Artifact{
		ID: "art-1", Name: "skill-x", Type: "skill", ProjectID: "proj-1",
	}); err != nil {
		t.Fatalf("CreateArtifact() failed: %v", err)
	}

	if err := s.DeleteProject(ctx, "proj-1"); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}

	_, err := s.GetArtifact(ctx, "art-1")
	if !IsNotFound(err) {
		t.Errorf("expected cascade delete of artifact, got %v", err)
	}
}

func TestListProjects_OrderedByID(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	// Insert out of order
	for _, id := range []string{"proj-c", "proj-a", "proj-b"} {
		if err := s.CreateProject(ctx, testProject(id)); err != nil {
			t.Fatalf("CreateProject(%s) failed: %v", id, err)
		}
	}

	got, err := s.ListProjects(ctx, ProjectFilter{})
	if err != nil {
		t.Fatalf("ListProjects() failed: %v", err)
	}
	want := []string{"proj-a", "proj-b", "proj-c"}
	if len(got) != len(want) {
		t.Fatalf("ListProjects() returned %d projects, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.ID != want[i] {
			t.Errorf("ListProjects()[%d].ID = %s, want %s", i, p.ID, want[i])
		}
	}
}

func TestListProjects_StatusFilterAndPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"proj-a", "proj-b", "proj-c", "proj-d"} {
		p := testProject(id)
		if id != "proj-c" {
			p.Status = model.StatusStale
		}
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject(%s) failed: %v", id, err)
		}
	}

	stale, err := s.ListProjects(ctx, ProjectFilter{Status: model.StatusStale})
	if err != nil {
		t.Fatalf("ListProjects(stale) failed: %v", err)
	}
	if len(stale) != 3 {
		t.Errorf("stale projects = %d, want 3", len(stale))
	}

	page, err := s.ListProjects(ctx, ProjectFilter{Status: model.StatusStale, Skip: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListProjects(page) failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "proj-b" {
		t.Errorf("page = %+v, want [proj-b]", page)
	}
}

func TestSetProjectStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-1")); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if err := s.SetProjectStatus(ctx, "proj-1", model.StatusStale); err != nil {
		t.Fatalf("SetProjectStatus() failed: %v", err)
	}

	got, err := s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject() failed: %v", err)
	}
	if got.Status != model.StatusStale {
		t.Errorf("status = %s, want stale", got.Status)
	}

	if err := s.SetProjectStatus(ctx, "absent", model.StatusStale); !IsNotFound(err) {
		t.Errorf("expected NOT_FOUND for missing id, got %v", err)
	}
}

func TestSetAllProjectStatuses(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"proj-a", "proj-b"} {
		if err := s.CreateProject(ctx, testProject(id)); err != nil {
			t.Fatalf("CreateProject(%s) failed: %v", id, err)
		}
	}

	n, err := s.SetAllProjectStatuses(ctx, model.StatusStale)
	if err != nil {
		t.Fatalf("SetAllProjectStatuses() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows touched = %d, want 2", n)
	}

	// Empty update is a no-op, not an error
	if err := s.DeleteProject(ctx, "proj-a"); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}
	if err := s.DeleteProject(ctx, "proj-b"); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}
	n, err = s.SetAllProjectStatuses(ctx, model.StatusStale)
	if err != nil {
		t.Fatalf("SetAllProjectStatuses() on empty cache failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rows touched = %d, want 0", n)
	}
}

func TestProject_ZeroLastFetchedRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	p := testProject("proj-1")
	p.LastFetched = time.Time{}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	got, err := s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject() failed: %v", err)
	}
	if !got.LastFetched.IsZero() {
		t.Errorf("LastFetched = %v, want zero time", got.LastFetched)
	}
}
