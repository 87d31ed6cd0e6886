package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxPerSession = 20

type MemoryStorage struct {
	mutex         sync.RWMutex
	looks         map[string]Look
	bySession     map[string][]string
	maxPerSession int
}

// NewMemoryStorage keeps at most maxPerSession looks per session, dropping
// the oldest.
func NewMemoryStorage(maxPerSession int) *MemoryStorage {
	if maxPerSession <= 0 {
		maxPerSession = defaultMaxPerSession
	}
	return &MemoryStorage{
		looks:         make(map[string]Look),
		bySession:     make(map[string][]string),
		maxPerSession: maxPerSession,
	}
}

func (m *MemoryStorage) SaveLook(_ context.Context, look Look) (Look, error) {
	look = prepare(look)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.looks[look.ID] = look
	ids := append(m.bySession[look.SessionID], look.ID)
	for len(ids) > m.maxPerSession {
		delete(m.looks, ids[0])
		ids = ids[1:]
	}
	m.bySession[look.SessionID] = ids
	return look, nil
}

func (m *MemoryStorage) GetLook(_ context.Context, id string) (Look, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	look, ok := m.looks[id]
	if !ok {
		return Look{}, ErrNotFound
	}
	return look, nil
}

func (m *MemoryStorage) ListLooks(_ context.Context, sessionID string, limit int) ([]Look, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := m.bySession[sessionID]
	out := make([]Look, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.looks[ids[i]])
	}
	return out, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func prepare(look Look) Look {
	if look.ID == "" {
		look.ID = uuid.NewString()
	}
	if look.CreatedAt.IsZero() {
		look.CreatedAt = time.Now().UTC()
	}
	return look
}
