package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorme-platform/pkg/utils"
)

// Locker guards the one-controller-per-seat invariant across processes.
// Acquire returns false when the seat is already held.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker backs seat locks with the shared Redis concurrency cap, so
// the invariant holds even with several API instances.
type RedisLocker struct {
	RDB *redis.Client
	TTL time.Duration
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (bool, error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return utils.AcquireConcurrencyCap(ctx, l.RDB, "session:seat:"+key, 1, ttl)
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.RDB, "session:seat:"+key)
}

// MemoryLocker is a single-process Locker for tests and local runs.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker { return &MemoryLocker{held: map[string]bool{}} }

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// Manager owns the live controllers of this process, one per
// (lesson, viewer) seat.
type Manager struct {
	cfg    Config
	locker Locker

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(cfg Config, locker Locker) *Manager {
	return &Manager{cfg: cfg.withDefaults(), locker: locker, sessions: map[string]*Controller{}}
}

func seatKey(lessonID, viewerID string) string { return lessonID + "|" + viewerID }

// Open starts a session for the viewer's seat. A seat already holding a
// live controller, here or on another instance, gets ErrSessionActive.
func (m *Manager) Open(ctx context.Context, lessonID string, viewer Viewer) (*Controller, error) {
	key := seatKey(lessonID, viewer.ID)

	m.mu.Lock()
	if _, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	m.mu.Unlock()

	ok, err := m.locker.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session: acquire seat lock: %w", err)
	}
	if !ok {
		return nil, ErrSessionActive
	}

	ctrl, err := Start(ctx, m.cfg, lessonID, viewer)
	if err != nil {
		if relErr := m.locker.Release(ctx, key); relErr != nil {
			m.cfg.Log.Warn("release seat lock", "key", key, "error", relErr)
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[key] = ctrl
	m.mu.Unlock()

	ctrl.OnClosed(func() { m.drop(key) })
	return ctrl, nil
}

// Get returns the viewer's live controller for the lesson.
func (m *Manager) Get(lessonID, viewerID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.sessions[seatKey(lessonID, viewerID)]
	if !ok {
		return nil, ErrNotFound
	}
	return ctrl, nil
}

func (m *Manager) drop(key string) {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	if err := m.locker.Release(context.Background(), key); err != nil {
		m.cfg.Log.Warn("release seat lock", "key", key, "error", err)
	}
}

// Len reports the number of live controllers, for health reporting.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
