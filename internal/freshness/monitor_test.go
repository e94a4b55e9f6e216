package freshness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextstream/contextstream-mcp/internal/api"
)

type fakeAPI struct {
	mu sync.Mutex

	snapshot    *api.IndexSnapshot
	statusErr   error
	ingestErr   error
	statusCalls int
	ingested    [][]api.IngestFile
}

func (f *fakeAPI) IndexStatus(ctx context.Context, projectID string) (*api.IndexSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.snapshot, f.statusErr
}

func (f *fakeAPI) IngestFiles(ctx context.Context, projectID string, batch []api.IngestFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, batch)
	return f.ingestErr
}

func (f *fakeAPI) batches() [][]api.IngestFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ingested
}

func newTestMonitor(client API, state *SessionState) *Monitor {
	return New(client, state, zerolog.Nop())
}

func ts(t time.Time) *time.Time { return &t }

// --- Classify ---

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		snapshot *api.IndexSnapshot
		want     Status
	}{
		{"nil snapshot", nil, StatusNotIndexed},
		{"zero files", &api.IndexSnapshot{IndexedFiles: 0, LastIndexed: ts(now.Add(-time.Hour))}, StatusNotIndexed},
		{"no timestamp", &api.IndexSnapshot{IndexedFiles: 10}, StatusNotIndexed},
		{"25h old", &api.IndexSnapshot{IndexedFiles: 10, LastIndexed: ts(now.Add(-25 * time.Hour))}, StatusStale},
		{"30m old", &api.IndexSnapshot{IndexedFiles: 10, LastIndexed: ts(now.Add(-30 * time.Minute))}, StatusRecentlyIndexed},
		{"2h old", &api.IndexSnapshot{IndexedFiles: 10, LastIndexed: ts(now.Add(-2 * time.Hour))}, StatusIndexed},
		{"23h old", &api.IndexSnapshot{IndexedFiles: 10, LastIndexed: ts(now.Add(-23 * time.Hour))}, StatusIndexed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.snapshot, now); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Check ---

func TestCheck_RecommendsForNotIndexedAndStale(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name            string
		snapshot        *api.IndexSnapshot
		wantStatus      Status
		wantRecommended bool
	}{
		{"empty index", &api.IndexSnapshot{}, StatusNotIndexed, true},
		{"stale index", &api.IndexSnapshot{IndexedFiles: 5, LastIndexed: ts(now.Add(-48 * time.Hour))}, StatusStale, true},
		{"fresh index", &api.IndexSnapshot{IndexedFiles: 5, LastIndexed: ts(now.Add(-10 * time.Minute))}, StatusRecentlyIndexed, false},
		{"aging index", &api.IndexSnapshot{IndexedFiles: 5, LastIndexed: ts(now.Add(-6 * time.Hour))}, StatusIndexed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeAPI{snapshot: tt.snapshot}
			m := newTestMonitor(client, NewSessionState("p-1", "/tmp/p"))

			rec, err := m.Check(context.Background(), "p-1", "/tmp/p")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", rec.Status, tt.wantStatus)
			}
			if rec.Recommended != tt.wantRecommended {
				t.Errorf("Recommended = %v, want %v", rec.Recommended, tt.wantRecommended)
			}
			if rec.Reason == "" {
				t.Error("every recommendation carries a Reason")
			}
		})
	}
}

func TestCheck_ReportsInFlightRefresh(t *testing.T) {
	client := &fakeAPI{}
	state := NewSessionState("p-1", "/tmp/p")
	state.tryBeginRefresh()
	m := newTestMonitor(client, state)

	rec, err := m.Check(context.Background(), "p-1", "/tmp/p")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusAutoRefreshing {
		t.Errorf("Status = %q, want auto_refreshing", rec.Status)
	}
	if client.statusCalls != 0 {
		t.Error("no remote call while a refresh is in flight")
	}
}

func TestCheck_PropagatesStatusError(t *testing.T) {
	client := &fakeAPI{statusErr: errors.New("boom")}
	m := newTestMonitor(client, NewSessionState("p-1", "/tmp/p"))

	if _, err := m.Check(context.Background(), "p-1", "/tmp/p"); err == nil {
		t.Error("expected error")
	}
}

// --- StartBackgroundRefresh ---

func writeTree(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("package x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestStartBackgroundRefresh_IngestsTree(t *testing.T) {
	root := writeTree(t, "main.go", "lib/util.go")
	client := &fakeAPI{}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)

	done := m.StartBackgroundRefresh("p-1", root, nil)
	if done == nil {
		t.Fatal("expected a refresh to start")
	}
	<-done

	total := 0
	for _, b := range client.batches() {
		total += len(b)
	}
	if total != 2 {
		t.Errorf("ingested %d files, want 2", total)
	}
	if state.Refreshing() {
		t.Error("guard must be released after completion")
	}
}

func TestStartBackgroundRefresh_SecondCallIsNoOp(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)

	first := m.StartBackgroundRefresh("p-1", root, nil)
	second := m.StartBackgroundRefresh("p-1", root, nil)
	if second != nil {
		t.Error("reentrant start must be a no-op")
	}
	<-first

	// The guard clears once the first run finishes; a new refresh may
	// start again.
	third := m.StartBackgroundRefresh("p-1", root, nil)
	if third == nil {
		t.Fatal("refresh should be restartable after the prior one ends")
	}
	<-third
}

func TestStartBackgroundRefresh_SwallowsIngestError(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{ingestErr: errors.New("server unavailable")}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)

	done := m.StartBackgroundRefresh("p-1", root, nil)
	<-done

	if state.Refreshing() {
		t.Error("guard must be released even after a failed refresh")
	}
}

func TestStartBackgroundRefresh_IncrementalUsesChangedFiles(t *testing.T) {
	root := writeTree(t, "old.go")
	cutoff := time.Now().Add(time.Hour)
	// Only files modified after the cutoff are re-ingested; old.go
	// predates it.
	client := &fakeAPI{}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)

	snapshot := &api.IndexSnapshot{IndexedFiles: 1, LastIndexed: ts(cutoff)}
	done := m.StartBackgroundRefresh("p-1", root, snapshot)
	<-done

	if len(client.batches()) != 0 {
		t.Errorf("expected no batches for unchanged tree, got %d", len(client.batches()))
	}
}

// --- MaybePeriodicRefresh ---

func TestMaybePeriodicRefresh_GatedOnSessionAge(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{snapshot: &api.IndexSnapshot{IndexedFiles: 1, LastIndexed: ts(time.Now().Add(-2 * time.Hour))}}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)

	if done := m.MaybePeriodicRefresh(); done != nil {
		t.Error("young session must not trigger a periodic refresh")
	}
	if client.statusCalls != 0 {
		t.Error("age gate should skip the remote status fetch entirely")
	}
}

func TestMaybePeriodicRefresh_RefreshesAgingIndex(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{snapshot: &api.IndexSnapshot{IndexedFiles: 1, LastIndexed: ts(time.Now().Add(-2 * time.Hour))}}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)
	m.now = func() time.Time { return time.Now().Add(minSessionAge + time.Minute) }

	done := m.MaybePeriodicRefresh()
	if done == nil {
		t.Fatal("2h-old index should be refresh-worthy on the periodic path")
	}
	<-done
}

func TestMaybePeriodicRefresh_SkipsRecentlyIndexed(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{snapshot: &api.IndexSnapshot{IndexedFiles: 1, LastIndexed: ts(time.Now().Add(-5 * time.Minute))}}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)
	m.now = func() time.Time { return time.Now().Add(minSessionAge + time.Minute) }

	if done := m.MaybePeriodicRefresh(); done != nil {
		t.Error("recently refreshed index must not re-ingest")
	}
}

func TestMaybePeriodicRefresh_Throttled(t *testing.T) {
	root := writeTree(t, "main.go")
	client := &fakeAPI{snapshot: &api.IndexSnapshot{IndexedFiles: 1, LastIndexed: ts(time.Now().Add(-5 * time.Minute))}}
	state := NewSessionState("p-1", root)
	m := newTestMonitor(client, state)
	m.now = func() time.Time { return time.Now().Add(minSessionAge + time.Minute) }

	m.MaybePeriodicRefresh()
	calls := func() int {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.statusCalls
	}
	first := calls()
	m.MaybePeriodicRefresh()
	if calls() != first {
		t.Error("second check inside the throttle window must not hit the server")
	}
}

func TestMaybePeriodicRefresh_NoProject(t *testing.T) {
	client := &fakeAPI{}
	m := newTestMonitor(client, NewSessionState("", ""))
	m.now = func() time.Time { return time.Now().Add(minSessionAge + time.Minute) }

	if done := m.MaybePeriodicRefresh(); done != nil {
		t.Error("no project bound, nothing to refresh")
	}
}
