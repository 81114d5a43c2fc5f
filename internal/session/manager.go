// Package session runs annotation decode sessions and keeps their results
// queryable until they expire.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ndpa-visualizer/backend/internal/metadata"
	"github.com/ndpa-visualizer/backend/internal/models"
	"github.com/ndpa-visualizer/backend/internal/parser"
	"github.com/ndpa-visualizer/backend/internal/store"
)

// MaxSessions limits concurrent sessions to prevent unbounded temp usage.
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup.
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively
// being used.
const SessionKeepAliveWindow = 5 * time.Minute

// Manager handles active decode sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	tempDir  string
	decoder  parser.Decoder
}

// SessionState holds the session metadata and the DuckDB-backed results.
type SessionState struct {
	Session      *models.DecodeSession
	Store        *store.AnnotationStore
	LastAccessed time.Time
}

// NewManager creates a new session manager. Uses environment variable
// ANNOTATION_TEMP_DIR for the temp directory, defaults to ./data/temp.
func NewManager() *Manager {
	tempDir := os.Getenv("ANNOTATION_TEMP_DIR")
	if tempDir == "" {
		tempDir = "./data/temp"
	}
	os.MkdirAll(tempDir, 0755)
	return NewManagerWithTempDir(tempDir)
}

// NewManagerWithTempDir creates a session manager with a specific temp
// directory.
func NewManagerWithTempDir(tempDir string) *Manager {
	return &Manager{
		sessions: make(map[string]*SessionState),
		tempDir:  tempDir,
	}
}

// SetAliases installs extra displayname tokens for all future sessions.
func (m *Manager) SetAliases(aliases map[string]models.AnnotationType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoder.Aliases = aliases
}

// StartDecode begins decoding an annotation file. The provider is consulted
// for the reference frame only when pixel units are requested.
func (m *Manager) StartDecode(fileID, ndpaPath string, provider metadata.Provider, mode parser.UnitMode) (*models.DecodeSession, error) {
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()

	sess := models.NewDecodeSession(sessionID, fileID, string(mode))
	sess.Status = models.SessionStatusDecoding
	sess.StartTime = time.Now().UnixMilli()

	state := &SessionState{
		Session:      sess,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	go m.runDecode(sessionID, ndpaPath, provider, mode)

	return sess, nil
}

func (m *Manager) runDecode(sessionID, ndpaPath string, provider metadata.Provider, mode parser.UnitMode) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Decode %s] PANIC recovered: %v\n", sessionID[:8], r)
			m.updateSessionError(sessionID, fmt.Sprintf("decode panicked: %v", r))
		}
	}()

	start := time.Now()
	fmt.Printf("[Decode %s] Starting decode of %s (mode=%s)\n", sessionID[:8], ndpaPath, mode)

	// The whole call shares one reference frame; a missing frame is fatal,
	// never a per-annotation warning.
	var frame *models.ReferenceFrame
	if mode == parser.UnitModePixel {
		if provider == nil {
			m.updateSessionError(sessionID, parser.ErrMetadataUnavailable.Error())
			return
		}
		var err error
		frame, err = provider.ReferenceFrame()
		if err != nil {
			fmt.Printf("[Decode %s] ERROR: reference frame: %v\n", sessionID[:8], err)
			m.updateSessionError(sessionID, fmt.Sprintf("reference frame: %v", err))
			return
		}
	}

	doc, err := parser.LoadNDPA(ndpaPath)
	if err != nil {
		fmt.Printf("[Decode %s] ERROR: reading annotation file: %v\n", sessionID[:8], err)
		m.updateSessionError(sessionID, fmt.Sprintf("reading annotation file: %v", err))
		return
	}

	m.mu.RLock()
	decoder := m.decoder
	m.mu.RUnlock()

	set, skipped, err := decoder.Decode(doc, frame, mode)
	if err != nil {
		fmt.Printf("[Decode %s] ERROR: decode failed: %v\n", sessionID[:8], err)
		m.updateSessionError(sessionID, err.Error())
		return
	}

	annStore, err := store.NewAnnotationStore(m.tempDir, sessionID)
	if err != nil {
		m.updateSessionError(sessionID, fmt.Sprintf("creating annotation store: %v", err))
		return
	}

	for i := range set.Annotations {
		annStore.AddAnnotation(&set.Annotations[i])
	}
	if err := annStore.Finalize(); err != nil {
		annStore.Close()
		m.updateSessionError(sessionID, fmt.Sprintf("storing annotations: %v", err))
		return
	}
	if err := annStore.LastError(); err != nil {
		annStore.Close()
		m.updateSessionError(sessionID, fmt.Sprintf("storing annotations: %v", err))
		return
	}

	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		// Session was cleaned up mid-decode; drop the results.
		m.mu.Unlock()
		annStore.Close()
		return
	}
	state.Store = annStore
	sess := state.Session
	sess.Status = models.SessionStatusComplete
	sess.CoordFormat = set.CoordFormat
	sess.AnnotationCount = len(set.Annotations)
	sess.SkippedCount = len(skipped)
	for _, w := range skipped {
		sess.Errors = append(sess.Errors, *w)
	}
	sess.EndTime = time.Now().UnixMilli()
	sess.ProcessingTimeMs = time.Since(start).Milliseconds()
	m.mu.Unlock()

	fmt.Printf("[Decode %s] Complete: %d annotations, %d skipped in %v\n",
		sessionID[:8], len(set.Annotations), len(skipped), time.Since(start))
}

func (m *Manager) updateSessionError(sessionID, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Status = models.SessionStatusError
		state.Session.FatalError = msg
		state.Session.EndTime = time.Now().UnixMilli()
	}
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*models.DecodeSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// TouchSession refreshes a session's keep-alive window.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Annotations returns one page of a session's annotations in source order,
// plus the session total.
func (m *Manager) Annotations(ctx context.Context, id string, page, pageSize int) ([]models.Annotation, int, bool) {
	state, ok := m.completedState(id)
	if !ok {
		return nil, 0, false
	}

	start := (page - 1) * pageSize
	anns, err := state.Store.List(ctx, start, start+pageSize)
	if err != nil {
		fmt.Printf("[Session %s] list error: %v\n", id[:8], err)
		return nil, 0, false
	}
	return anns, state.Store.Len(), true
}

// QueryViewport returns a session's annotations intersecting the given
// rectangle.
func (m *Manager) QueryViewport(ctx context.Context, id string, minX, minY, maxX, maxY float64) ([]models.Annotation, bool) {
	state, ok := m.completedState(id)
	if !ok {
		return nil, false
	}

	anns, err := state.Store.QueryViewport(ctx, minX, minY, maxX, maxY)
	if err != nil {
		fmt.Printf("[Session %s] viewport query error: %v\n", id[:8], err)
		return nil, false
	}
	return anns, true
}

func (m *Manager) completedState(id string) (*SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok || state.Store == nil || state.Session.Status != models.SessionStatusComplete {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state, true
}

// DeleteSession removes a session and its backing store.
func (m *Manager) DeleteSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteSessionLocked(id)
}

func (m *Manager) deleteSessionLocked(id string) {
	state, ok := m.sessions[id]
	if !ok {
		return
	}
	if state.Store != nil {
		state.Store.Close()
	}
	delete(m.sessions, id)
}

// CleanupOldSessions removes sessions that finished longer than maxAge ago
// and have not been touched within the keep-alive window.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, state := range m.sessions {
		if now.Sub(state.LastAccessed) < SessionKeepAliveWindow {
			continue
		}
		endTime := time.UnixMilli(state.Session.EndTime)
		if state.Session.EndTime != 0 && now.Sub(endTime) > maxAge {
			fmt.Printf("[Session %s] Cleaning up expired session\n", id[:8])
			m.deleteSessionLocked(id)
		}
	}
}

// cleanupOldSessionsIfNeeded evicts the oldest idle sessions when the
// session count is at the limit.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var oldestID string
	var oldest time.Time
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusDecoding {
			continue
		}
		if oldestID == "" || state.LastAccessed.Before(oldest) {
			oldestID = id
			oldest = state.LastAccessed
		}
	}
	if oldestID != "" {
		fmt.Printf("[Session %s] Evicting oldest session (limit %d)\n", oldestID[:8], MaxSessions)
		m.deleteSessionLocked(oldestID)
	}
}
