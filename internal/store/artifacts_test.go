package store

import (
	"testing"

	"github.com/roach88/quiver/internal/model"
)

func testArtifact(id, projectID string) model.Artifact {
	return model.Artifact{
		ID:              id,
		Name:            "skill-" + id,
		Type:            "skill",
		ProjectID:       projectID,
		DeployedVersion: "1.0.0",
	}
}

func TestArtifact_CreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-1")); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	want := testArtifact("art-1", "proj-1")
	want.UpstreamVersion = "1.1.0"
	want.IsOutdated = true
	if err := s.CreateArtifact(ctx, want); err != nil {
		t.Fatalf("CreateArtifact() failed: %v", err)
	}

	got, err := s.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatalf("GetArtifact() failed: %v", err)
	}
	if got != want {
		t.Errorf("GetArtifact() = %+v, want %+v", got, want)
	}
}

func TestArtifact_DanglingProjectViolatesConstraint(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateArtifact(t.Context(), testArtifact("art-1", "no-such-project"))
	if !IsConstraint(err) {
		t.Errorf("expected CONSTRAINT_VIOLATED, got %v", err)
	}
}

func TestArtifact_UpdateAndDeleteMissingReturnNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.UpdateArtifact(ctx, testArtifact("absent", "proj-1")); !IsNotFound(err) {
		t.Errorf("UpdateArtifact: expected NOT_FOUND, got %v", err)
	}
	if err := s.DeleteArtifact(ctx, "absent"); !IsNotFound(err) {
		t.Errorf("DeleteArtifact: expected NOT_FOUND, got %v", err)
	}
}

func TestListArtifacts_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	for _, pid := range []string{"proj-a", "proj-b"} {
		if err := s.CreateProject(ctx, testProject(pid)); err != nil {
			t.Fatalf("CreateProject(%s) failed: %v", pid, err)
		}
	}
	fixtures := []model.Artifact{
		testArtifact("art-1", "proj-a"),
		testArtifact("art-2", "proj-a"),
		testArtifact("art-3", "proj-b"),
	}
	fixtures[1].UpstreamVersion = "2.0.0"
	fixtures[1].IsOutdated = true
	for _, a := range fixtures {
		if err := s.CreateArtifact(ctx, a); err != nil {
			t.Fatalf("CreateArtifact(%s) failed: %v", a.ID, err)
		}
	}

	byProject, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: "proj-a"})
	if err != nil {
		t.Fatalf("ListArtifacts(proj-a) failed: %v", err)
	}
	if len(byProject) != 2 {
		t.Errorf("proj-a artifacts = %d, want 2", len(byProject))
	}

	outdated, err := s.ListArtifacts(ctx, ArtifactFilter{OutdatedOnly: true})
	if err != nil {
		t.Fatalf("ListArtifacts(outdated) failed: %v", err)
	}
	if len(outdated) != 1 || outdated[0].ID != "art-2" {
		t.Errorf("outdated artifacts = %+v, want [art-2]", outdated)
	}

	both, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: "proj-b", OutdatedOnly: true})
	if err != nil {
		t.Fatalf("ListArtifacts(both) failed: %v", err)
	}
	if len(both) != 0 {
		t.Errorf("proj-b outdated artifacts = %+v, want none", both)
	}
}

func TestListArtifacts_OrderedByIDWithPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.CreateProject(ctx, testProject("proj-a")); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	for _, id := range []string{"art-c", "art-a", "art-b"} {
		if err := s.CreateArtifact(ctx, testArtifact(id, "proj-a")); err != nil {
			t.Fatalf("CreateArtifact(%s) failed: %v", id, err)
		}
	}

	page, err := s.ListArtifacts(ctx, ArtifactFilter{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListArtifacts() failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "art-b" || page[1].ID != "art-c" {
		t.Errorf("page = %+v, want [art-b art-c]", page)
	}
}
