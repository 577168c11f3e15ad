package lifecycle

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/store"
	"go.uber.org/zap"
)

// Manager tracks the open editing sessions. Each preset namespace has at
// most one session.
type Manager struct {
	store  store.Store
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
	byPath   map[string]string
}

// NewManager creates a manager whose sessions share opts.
func NewManager(st store.Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Manager{
		store:    st,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Controller),
		byPath:   make(map[string]string),
	}
}

// Open starts a session on presetPath and tries to resume where the last
// session left off. A failed resume leaves the session idle.
func (m *Manager) Open(ctx context.Context, presetPath string) (*Controller, error) {
	presetPath = strings.TrimSpace(presetPath)
	if presetPath == "" {
		return nil, core.ErrInvalidName
	}

	m.mu.Lock()
	if _, ok := m.byPath[presetPath]; ok {
		m.mu.Unlock()
		return nil, core.ErrNamespaceAlreadyInUse
	}
	opts := m.opts
	opts.SessionID = uuid.NewString()
	c := New(m.store, presetPath, opts)
	m.sessions[c.ID()] = c
	m.byPath[presetPath] = c.ID()
	count := len(m.sessions)
	m.mu.Unlock()

	m.opts.Recorder.SetSessionsActive(count)
	m.logger.Info("session opened",
		zap.String("session_id", c.ID()),
		zap.String("preset_path", presetPath),
	)

	if _, err := c.Resume(ctx); err != nil {
		m.logger.Warn("resume failed, session starts idle",
			zap.String("session_id", c.ID()),
			zap.Error(err),
		)
	}
	return c, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return c, nil
}

// CloseSession ends the session with id.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return core.ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.byPath, c.PresetPath())
	count := len(m.sessions)
	m.mu.Unlock()

	c.Close()
	m.opts.Recorder.SetSessionsActive(count)
	m.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

// Sessions returns snapshots of all open sessions ordered by preset path.
func (m *Manager) Sessions() []Snapshot {
	m.mu.RLock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, len(controllers))
	for i, c := range controllers {
		snaps[i] = c.Snapshot()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].PresetPath < snaps[j].PresetPath })
	return snaps
}

// LiveBase returns the base name owned by the session on presetPath.
func (m *Manager) LiveBase(presetPath string) (string, bool) {
	m.mu.RLock()
	id, ok := m.byPath[presetPath]
	c := m.sessions[id]
	m.mu.RUnlock()
	if !ok || c == nil {
		return "", false
	}
	return c.LiveBase()
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.byPath = make(map[string]string)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	m.opts.Recorder.SetSessionsActive(0)
}
