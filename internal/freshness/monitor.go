// Package freshness classifies a project's remote search index state
// and triggers non-blocking (re)ingestion. The interactive path never
// waits on a refresh: the background task is fire-and-forget, guarded
// against reentry, and swallows its own failures.
package freshness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextstream/contextstream-mcp/internal/api"
	"github.com/contextstream/contextstream-mcp/internal/files"
)

// Freshness thresholds and long-session throttling.
const (
	// staleAfter marks an index stale once the last ingestion is
	// older than this.
	staleAfter = 24 * time.Hour
	// recentWindow marks an index recently refreshed.
	recentWindow = time.Hour
	// refreshCheckInterval throttles periodic checks: each one costs
	// a remote round trip and a full status fetch.
	refreshCheckInterval = 10 * time.Minute
	// minSessionAge gates periodic checks until the session has been
	// open this long.
	minSessionAge = 30 * time.Minute
	// ingestBatchSize is files per ingestion upload.
	ingestBatchSize = 50
)

// Status classifies a project's index state.
type Status string

const (
	StatusNotIndexed      Status = "not_indexed"
	StatusIndexed         Status = "indexed"
	StatusStale           Status = "stale"
	StatusRecentlyIndexed Status = "recently_indexed"
	StatusAutoStarted     Status = "auto_started"
	StatusAutoRefreshing  Status = "auto_refreshing"
)

// IngestRecommendation is a derived value describing whether a project
// should be (re)ingested. Recomputed from a status snapshot each time;
// never persisted.
type IngestRecommendation struct {
	Recommended  bool       `json:"recommended"`
	Status       Status     `json:"status"`
	IndexedFiles int        `json:"indexed_files,omitempty"`
	LastIndexed  *time.Time `json:"last_indexed,omitempty"`
	Reason       string     `json:"reason"`
	Benefits     []string   `json:"benefits,omitempty"`
	Command      string     `json:"command,omitempty"`
}

// SessionState is the cross-call state of one client instance. Exactly
// one exists per instance, created at session init and shared by
// reference with the monitor and packer. The original design assumed a
// single-threaded event loop; Go has real concurrency, so the fields
// are mutex-guarded instead.
type SessionState struct {
	mu sync.Mutex

	startTime        time.Time
	projectID        string
	rootPath         string
	refreshing       bool
	lastRefreshCheck time.Time
}

// NewSessionState creates session state for a new conversation.
func NewSessionState(projectID, rootPath string) *SessionState {
	return &SessionState{
		startTime: time.Now(),
		projectID: projectID,
		rootPath:  rootPath,
	}
}

// Begin restarts the state for a new session init in the same process.
func (s *SessionState) Begin(projectID, rootPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
	s.projectID = projectID
	s.rootPath = rootPath
	s.lastRefreshCheck = time.Time{}
}

// Project returns the session's project id and root path.
func (s *SessionState) Project() (projectID, rootPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID, s.rootPath
}

// StartedAt returns when the session began.
func (s *SessionState) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Refreshing reports whether a background refresh is in flight.
func (s *SessionState) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// tryBeginRefresh sets the reentrancy guard. A second refresh while
// one is in flight must be a no-op.
func (s *SessionState) tryBeginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		return false
	}
	s.refreshing = true
	return true
}

// endRefresh clears the guard. Always runs, even after a failed
// refresh — a wedged guard would block every future check.
func (s *SessionState) endRefresh() {
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

// shouldCheck applies the long-session throttle and records the check
// time when it passes.
func (s *SessionState) shouldCheck(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.startTime) < minSessionAge {
		return false
	}
	if !s.lastRefreshCheck.IsZero() && now.Sub(s.lastRefreshCheck) < refreshCheckInterval {
		return false
	}
	s.lastRefreshCheck = now
	return true
}

// API is the slice of the remote client the monitor needs.
type API interface {
	IndexStatus(ctx context.Context, projectID string) (*api.IndexSnapshot, error)
	IngestFiles(ctx context.Context, projectID string, batch []api.IngestFile) error
}

// Monitor decides index freshness and runs background ingestion.
type Monitor struct {
	api   API
	state *SessionState
	log   zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Monitor bound to one session's state.
func New(client API, state *SessionState, log zerolog.Logger) *Monitor {
	return &Monitor{api: client, state: state, log: log, now: time.Now}
}

// Classify maps an index snapshot to a Status relative to now.
func Classify(snapshot *api.IndexSnapshot, now time.Time) Status {
	if snapshot == nil || snapshot.IndexedFiles == 0 {
		return StatusNotIndexed
	}
	if snapshot.LastIndexed == nil || snapshot.LastIndexed.IsZero() {
		return StatusNotIndexed
	}
	age := now.Sub(*snapshot.LastIndexed)
	switch {
	case age > staleAfter:
		return StatusStale
	case age < recentWindow:
		return StatusRecentlyIndexed
	default:
		return StatusIndexed
	}
}

// Check fetches the index snapshot for a project and derives a
// recommendation. Indexing is recommended for not_indexed and stale;
// the 1–24h band is reported but not urgent on this path.
func (m *Monitor) Check(ctx context.Context, projectID, folderPath string) (*IngestRecommendation, error) {
	if m.state.Refreshing() {
		return &IngestRecommendation{
			Status: StatusAutoRefreshing,
			Reason: "a background index refresh is already running",
		}, nil
	}

	snapshot, err := m.api.IndexStatus(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetching index status: %w", err)
	}

	now := m.now()
	status := Classify(snapshot, now)
	rec := &IngestRecommendation{
		Status:       status,
		IndexedFiles: snapshot.IndexedFiles,
		LastIndexed:  snapshot.LastIndexed,
	}

	switch status {
	case StatusNotIndexed:
		rec.Recommended = true
		rec.Reason = "project has no indexed files"
		rec.Benefits = []string{
			"semantic code search across the project",
			"context packing can cite real code",
		}
		rec.Command = "index_check with auto_start=true, or re-run session_init"
	case StatusStale:
		rec.Recommended = true
		rec.Reason = fmt.Sprintf("index is older than %s", staleAfter)
		rec.Command = "index_check with auto_start=true"
	case StatusRecentlyIndexed:
		rec.Reason = "index was refreshed within the last hour"
	default:
		rec.Reason = "index is current enough for this session"
	}
	return rec, nil
}

// MaybePeriodicRefresh is the long-session path: throttled to one
// check per interval and gated on session age. Unlike the first-prompt
// path, the 1–24h "indexed" band counts as refresh-worthy here.
// Returns the refresh's done channel, or nil when nothing started.
func (m *Monitor) MaybePeriodicRefresh() <-chan struct{} {
	projectID, root := m.state.Project()
	if projectID == "" || root == "" {
		return nil
	}
	if !m.state.shouldCheck(m.now()) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	snapshot, err := m.api.IndexStatus(ctx, projectID)
	if err != nil {
		m.log.Debug().Err(err).Msg("periodic index status check failed")
		return nil
	}

	status := Classify(snapshot, m.now())
	if status == StatusRecentlyIndexed {
		return nil
	}
	return m.StartBackgroundRefresh(projectID, root, snapshot)
}

// StartBackgroundRefresh kicks off a detached (re)ingestion. The
// caller's control flow returns immediately; the returned channel
// closes when the task finishes and exists so tests can await it.
// Returns nil when a refresh is already in flight.
func (m *Monitor) StartBackgroundRefresh(projectID, root string, snapshot *api.IndexSnapshot) <-chan struct{} {
	if !m.state.tryBeginRefresh() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer m.state.endRefresh()
		if err := m.refresh(projectID, root, snapshot); err != nil {
			// Logged and swallowed: background failures never reach
			// the interactive path.
			m.log.Warn().Err(err).Str("project", projectID).Msg("background index refresh failed")
		}
	}()
	return done
}

// refresh performs the ingestion. Incremental when a prior ingestion
// timestamp exists and the index isn't empty; otherwise a full tree
// read. No cancellation: once started it runs to completion or error.
func (m *Monitor) refresh(projectID, root string, snapshot *api.IndexSnapshot) error {
	status := Classify(snapshot, m.now())

	var (
		batcher *files.Batcher
		err     error
	)
	if snapshot != nil && snapshot.LastIndexed != nil && status != StatusNotIndexed {
		batcher, err = files.ListChangedFilesInBatches(root, *snapshot.LastIndexed, files.Options{BatchSize: ingestBatchSize})
	} else {
		batcher, err = files.ListFilesInBatches(root, files.Options{BatchSize: ingestBatchSize})
	}
	if err != nil {
		return fmt.Errorf("enumerating %s: %w", root, err)
	}

	ctx := context.Background()
	total := 0
	for batch := batcher.Next(); batch != nil; batch = batcher.Next() {
		upload := make([]api.IngestFile, len(batch))
		for i, f := range batch {
			upload[i] = api.IngestFile{Path: f.Path, Content: f.Content, Language: f.Language}
		}
		if err := m.api.IngestFiles(ctx, projectID, upload); err != nil {
			return fmt.Errorf("ingesting batch of %d: %w", len(upload), err)
		}
		total += len(batch)
	}

	m.log.Info().Int("files", total).Str("project", projectID).Msg("index refresh complete")
	return nil
}
