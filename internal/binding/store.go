package binding

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

const (
	// BindingsDir is the subdirectory under the config root where
	// per-folder Binding files live.
	BindingsDir = "bindings"
	// MappingsFile is the global parent-mapping file.
	MappingsFile = "mappings.json"
)

// Store defines the persistence interface for bindings and mappings.
// Abstracted for testability.
type Store interface {
	ReadLocal(folder string) (Binding, bool)
	WriteLocal(folder string, partial Binding) bool
	ReplaceLocal(folder string, b Binding) bool
	ResolveWorkspace(folder string) (Binding, Source, bool)
	AddGlobalMapping(m ParentMapping) error
	Mappings() []ParentMapping
}

// FileStore implements Store under a fixed per-user config root.
type FileStore struct {
	root string
}

// NewFileStore creates a filesystem-backed binding store. The root
// defaults to ~/.contextstream and can be overridden with
// CONTEXTSTREAM_CONFIG_DIR.
func NewFileStore() *FileStore {
	if dir := os.Getenv("CONTEXTSTREAM_CONFIG_DIR"); dir != "" {
		return &FileStore{root: dir}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &FileStore{root: filepath.Join(home, ".contextstream")}
}

// NewFileStoreAt creates a store rooted at an explicit directory.
func NewFileStoreAt(root string) *FileStore {
	return &FileStore{root: root}
}

// bindingPath returns the Binding file path for a folder. The filename
// is a content hash of the cleaned folder path, so arbitrary paths map
// to safe filenames.
func (fs *FileStore) bindingPath(folder string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(folder)))
	return filepath.Join(fs.root, BindingsDir, hex.EncodeToString(sum[:8])+".json")
}

// mappingsPath returns the global mappings file path.
func (fs *FileStore) mappingsPath() string {
	return filepath.Join(fs.root, MappingsFile)
}

// ReadLocal loads the Binding for a folder. It never fails: missing,
// unreadable, or malformed files all read as absent, and a hand-edited
// non-UUID workspace id counts as malformed. A non-UUID project id
// reads as unset without discarding the workspace half.
func (fs *FileStore) ReadLocal(folder string) (Binding, bool) {
	data, err := os.ReadFile(fs.bindingPath(folder))
	if err != nil {
		return Binding{}, false
	}
	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return Binding{}, false
	}
	if !b.Valid() {
		return Binding{}, false
	}
	if b.ProjectID != "" && uuid.Validate(b.ProjectID) != nil {
		b.ProjectID = ""
		b.ProjectName = ""
	}
	return b, true
}

// WriteLocal merges partial into any existing Binding for the folder
// and persists the result. AssociatedAt is refreshed when the caller
// did not supply one. Returns false when the merged Binding is invalid
// or the write fails — callers treat this as "not persisted", never as
// a hard error.
func (fs *FileStore) WriteLocal(folder string, partial Binding) bool {
	existing, _ := fs.ReadLocal(folder)
	merged := existing.merge(partial)
	if partial.AssociatedAt.IsZero() {
		merged.AssociatedAt = time.Now().UTC()
	}
	return fs.write(folder, merged)
}

// ReplaceLocal writes b verbatim, discarding any existing Binding for
// the folder. Used when the old Binding is known to be wrong and its
// fields must not survive a merge.
func (fs *FileStore) ReplaceLocal(folder string, b Binding) bool {
	if b.AssociatedAt.IsZero() {
		b.AssociatedAt = time.Now().UTC()
	}
	return fs.write(folder, b)
}

func (fs *FileStore) write(folder string, b Binding) bool {
	if !b.Valid() {
		return false
	}
	path := fs.bindingPath(folder)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return false
	}
	return os.WriteFile(path, data, 0o644) == nil
}

// ResolveWorkspace finds the Binding governing a folder: the folder's
// own Binding first, then the global parent mappings in file order.
func (fs *FileStore) ResolveWorkspace(folder string) (Binding, Source, bool) {
	if b, ok := fs.ReadLocal(folder); ok {
		return b, SourceLocalConfig, true
	}

	clean := filepath.ToSlash(filepath.Clean(folder))
	for _, m := range fs.Mappings() {
		if uuid.Validate(m.WorkspaceID) != nil {
			// Hand-edited mapping with a corrupt workspace id.
			continue
		}
		ok, err := doublestar.Match(m.Pattern, clean)
		if err != nil || !ok {
			continue
		}
		return Binding{
			WorkspaceID:   m.WorkspaceID,
			WorkspaceName: m.WorkspaceName,
		}, SourceParentMapping, true
	}
	return Binding{}, "", false
}

// Mappings loads the global parent mappings. Malformed files read as
// an empty list.
func (fs *FileStore) Mappings() []ParentMapping {
	data, err := os.ReadFile(fs.mappingsPath())
	if err != nil {
		return nil
	}
	var out []ParentMapping
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// AddGlobalMapping appends a parent mapping, replacing any existing
// entry with the same pattern.
func (fs *FileStore) AddGlobalMapping(m ParentMapping) error {
	if strings.TrimSpace(m.Pattern) == "" {
		return fmt.Errorf("mapping pattern is empty")
	}
	if uuid.Validate(m.WorkspaceID) != nil {
		return fmt.Errorf("mapping workspace id %q is not a UUID", m.WorkspaceID)
	}
	if _, err := doublestar.Match(m.Pattern, "syntax-check"); err != nil {
		return fmt.Errorf("invalid mapping pattern %q: %w", m.Pattern, err)
	}

	mappings := fs.Mappings()
	replaced := false
	for i := range mappings {
		if mappings[i].Pattern == m.Pattern {
			mappings[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		mappings = append(mappings, m)
	}

	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return fmt.Errorf("creating config root: %w", err)
	}
	data, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mappings: %w", err)
	}
	if err := os.WriteFile(fs.mappingsPath(), data, 0o644); err != nil {
		return fmt.Errorf("writing mappings: %w", err)
	}
	return nil
}
