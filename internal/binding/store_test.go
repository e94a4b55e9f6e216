package binding

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStoreAt(t.TempDir())
}

// --- ReadLocal / WriteLocal ---

func TestReadLocal_AbsentFolder(t *testing.T) {
	store := newTestStore(t)

	if _, ok := store.ReadLocal("/some/folder"); ok {
		t.Error("expected absent for never-written folder")
	}
}

func TestWriteLocal_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	ok := store.WriteLocal("/home/u/acme-api", Binding{
		WorkspaceID:   "11111111-1111-1111-1111-111111111111",
		WorkspaceName: "Acme API",
	})
	if !ok {
		t.Fatal("write failed")
	}

	b, ok := store.ReadLocal("/home/u/acme-api")
	if !ok {
		t.Fatal("expected binding after write")
	}
	if b.WorkspaceID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("WorkspaceID = %q", b.WorkspaceID)
	}
	if b.WorkspaceName != "Acme API" {
		t.Errorf("WorkspaceName = %q", b.WorkspaceName)
	}
	if b.AssociatedAt.IsZero() {
		t.Error("AssociatedAt should be set when the caller omits it")
	}
}

func TestWriteLocal_MergesUnspecifiedFields(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/widgets"

	store.WriteLocal(folder, Binding{
		WorkspaceID:   "11111111-1111-1111-1111-111111111111",
		WorkspaceName: "Widgets Inc",
	})
	store.WriteLocal(folder, Binding{
		WorkspaceID: "11111111-1111-1111-1111-111111111111",
		ProjectID:   "22222222-2222-2222-2222-222222222222",
	})

	b, ok := store.ReadLocal(folder)
	if !ok {
		t.Fatal("expected binding")
	}
	if b.WorkspaceName != "Widgets Inc" {
		t.Errorf("merge dropped WorkspaceName, got %q", b.WorkspaceName)
	}
	if b.ProjectID != "22222222-2222-2222-2222-222222222222" {
		t.Errorf("ProjectID = %q", b.ProjectID)
	}
}

func TestWriteLocal_RejectsBindingWithoutWorkspace(t *testing.T) {
	store := newTestStore(t)

	if store.WriteLocal("/home/u/x", Binding{ProjectID: "22222222-2222-2222-2222-222222222222"}) {
		t.Error("a Binding without workspace_id must not be persisted")
	}
	if _, ok := store.ReadLocal("/home/u/x"); ok {
		t.Error("nothing should have been written")
	}
}

func TestWriteLocal_RejectsNonUUIDWorkspace(t *testing.T) {
	store := newTestStore(t)

	if store.WriteLocal("/home/u/x", Binding{WorkspaceID: "not-a-uuid"}) {
		t.Error("a non-UUID workspace id must not be persisted")
	}
	if _, ok := store.ReadLocal("/home/u/x"); ok {
		t.Error("nothing should have been written")
	}
}

func TestWriteLocal_PreservesExplicitAssociatedAt(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	store.WriteLocal("/home/u/y", Binding{
		WorkspaceID:  "11111111-1111-1111-1111-111111111111",
		AssociatedAt: at,
	})

	b, _ := store.ReadLocal("/home/u/y")
	if !b.AssociatedAt.Equal(at) {
		t.Errorf("AssociatedAt = %v, want %v", b.AssociatedAt, at)
	}
}

func TestReplaceLocal_DiscardsExistingFields(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/moved"

	store.WriteLocal(folder, Binding{
		WorkspaceID: "11111111-1111-1111-1111-111111111111",
		ProjectID:   "22222222-2222-2222-2222-222222222222",
	})
	store.ReplaceLocal(folder, Binding{
		WorkspaceID:   "33333333-3333-3333-3333-333333333333",
		WorkspaceName: "New Home",
	})

	b, ok := store.ReadLocal(folder)
	if !ok {
		t.Fatal("expected binding")
	}
	if b.WorkspaceID != "33333333-3333-3333-3333-333333333333" {
		t.Errorf("WorkspaceID = %q", b.WorkspaceID)
	}
	if b.ProjectID != "" {
		t.Error("replace must not carry over the old project id")
	}
}

func TestReadLocal_MalformedFileIsAbsent(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/corrupt"

	store.WriteLocal(folder, Binding{WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	if err := os.WriteFile(store.bindingPath(folder), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.ReadLocal(folder); ok {
		t.Error("malformed file must read as absent, not crash")
	}
}

func TestReadLocal_NonUUIDWorkspaceIsAbsent(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/edited"

	store.WriteLocal(folder, Binding{WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	edited := []byte(`{"workspace_id": "my-workspace", "workspace_name": "Mine"}`)
	if err := os.WriteFile(store.bindingPath(folder), edited, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.ReadLocal(folder); ok {
		t.Error("a hand-edited non-UUID workspace id must read as absent")
	}
	if _, _, ok := store.ResolveWorkspace(folder); ok {
		t.Error("the corrupt binding must not resolve either")
	}
}

func TestReadLocal_NonUUIDProjectReadsAsUnset(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/half-edited"

	store.WriteLocal(folder, Binding{WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	edited := []byte(`{
		"workspace_id": "11111111-1111-1111-1111-111111111111",
		"project_id": "my-project",
		"project_name": "My Project"
	}`)
	if err := os.WriteFile(store.bindingPath(folder), edited, 0o644); err != nil {
		t.Fatal(err)
	}

	b, ok := store.ReadLocal(folder)
	if !ok {
		t.Fatal("the workspace half is intact and should still resolve")
	}
	if b.ProjectID != "" || b.ProjectName != "" {
		t.Errorf("corrupt project fields should read as unset, got %+v", b)
	}
}

// --- ResolveWorkspace ---

func TestResolveWorkspace_DirectBindingWins(t *testing.T) {
	store := newTestStore(t)
	folder := "/home/u/acme/api"

	store.WriteLocal(folder, Binding{WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	_ = store.AddGlobalMapping(ParentMapping{
		Pattern:     "/home/u/acme/**",
		WorkspaceID: "99999999-9999-9999-9999-999999999999",
	})

	b, source, ok := store.ResolveWorkspace(folder)
	if !ok {
		t.Fatal("expected resolution")
	}
	if source != SourceLocalConfig {
		t.Errorf("source = %q, want local_config", source)
	}
	if b.WorkspaceID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("WorkspaceID = %q", b.WorkspaceID)
	}
}

func TestResolveWorkspace_ParentMappingFallback(t *testing.T) {
	store := newTestStore(t)

	_ = store.AddGlobalMapping(ParentMapping{
		Pattern:       "/home/u/acme/**",
		WorkspaceID:   "33333333-3333-3333-3333-333333333333",
		WorkspaceName: "Acme",
	})

	b, source, ok := store.ResolveWorkspace("/home/u/acme/new-service")
	if !ok {
		t.Fatal("expected parent mapping match")
	}
	if source != SourceParentMapping {
		t.Errorf("source = %q, want parent_mapping", source)
	}
	if b.WorkspaceName != "Acme" {
		t.Errorf("WorkspaceName = %q", b.WorkspaceName)
	}
	if b.ProjectID != "" {
		t.Error("parent mapping must not carry a project id")
	}
}

func TestResolveWorkspace_FirstMappingWins(t *testing.T) {
	store := newTestStore(t)

	_ = store.AddGlobalMapping(ParentMapping{Pattern: "/home/**", WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	_ = store.AddGlobalMapping(ParentMapping{Pattern: "/home/u/**", WorkspaceID: "22222222-2222-2222-2222-222222222222"})

	b, _, ok := store.ResolveWorkspace("/home/u/app")
	if !ok {
		t.Fatal("expected match")
	}
	if b.WorkspaceID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("first mapping in file order should win, got %q", b.WorkspaceID)
	}
}

func TestResolveWorkspace_NoMatch(t *testing.T) {
	store := newTestStore(t)
	if _, _, ok := store.ResolveWorkspace("/tmp/unrelated"); ok {
		t.Error("expected no resolution")
	}
}

// --- AddGlobalMapping ---

func TestAddGlobalMapping_DedupesByPattern(t *testing.T) {
	store := newTestStore(t)

	_ = store.AddGlobalMapping(ParentMapping{Pattern: "/a/**", WorkspaceID: "11111111-1111-1111-1111-111111111111"})
	_ = store.AddGlobalMapping(ParentMapping{Pattern: "/a/**", WorkspaceID: "22222222-2222-2222-2222-222222222222"})

	mappings := store.Mappings()
	if len(mappings) != 1 {
		t.Fatalf("len(mappings) = %d, want 1", len(mappings))
	}
	if mappings[0].WorkspaceID != "22222222-2222-2222-2222-222222222222" {
		t.Errorf("duplicate pattern should replace, got %q", mappings[0].WorkspaceID)
	}
}

func TestAddGlobalMapping_RejectsEmpty(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddGlobalMapping(ParentMapping{Pattern: "", WorkspaceID: "x"}); err == nil {
		t.Error("empty pattern should be rejected")
	}
	if err := store.AddGlobalMapping(ParentMapping{Pattern: "/a/**"}); err == nil {
		t.Error("empty workspace id should be rejected")
	}
	if err := store.AddGlobalMapping(ParentMapping{Pattern: "/a/**", WorkspaceID: "not-a-uuid"}); err == nil {
		t.Error("non-UUID workspace id should be rejected")
	}
}

func TestResolveWorkspace_SkipsMappingWithBadWorkspaceID(t *testing.T) {
	store := newTestStore(t)

	// Hand-edited mappings file: the first entry's workspace id is not
	// a UUID and must be skipped, not served.
	raw := []byte(`[
		{"pattern": "/home/**", "workspace_id": "my-workspace"},
		{"pattern": "/home/**", "workspace_id": "22222222-2222-2222-2222-222222222222"}
	]`)
	if err := os.MkdirAll(store.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.root, MappingsFile), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	b, _, ok := store.ResolveWorkspace("/home/u/app")
	if !ok {
		t.Fatal("the valid mapping should still match")
	}
	if b.WorkspaceID != "22222222-2222-2222-2222-222222222222" {
		t.Errorf("WorkspaceID = %q, want the valid entry", b.WorkspaceID)
	}
}

func TestMappings_MalformedFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	if err := os.MkdirAll(store.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.root, MappingsFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := store.Mappings(); len(got) != 0 {
		t.Errorf("malformed mappings file should read as empty, got %d entries", len(got))
	}
}
