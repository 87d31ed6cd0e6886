package handlers

import (
	"sync"
	"time"

	"tryon-studio/internal/session"
)

const (
	menuMain = "main"

	awaitKeywords = "keywords"
)

// UIState is the chat-side view of a try-on session: which panel message to
// edit and what the next photo or text message fills.
type UIState struct {
	MessageID int
	Menu      string // "main" or a style field name

	// AwaitingSlot is the slot the next photo fills; empty picks the first
	// missing one.
	AwaitingSlot session.Slot
	// AwaitingText is a custom style field or "keywords".
	AwaitingText string

	UpdatedAt time.Time
}

type UIStore struct {
	mu sync.Mutex
	m  map[stateKey]*UIState
}

type stateKey struct {
	ChatID int64
	UserID int64
}

func NewUIStore() *UIStore {
	return &UIStore{m: make(map[stateKey]*UIState)}
}

func (s *UIStore) Get(chatID, userID int64) UIState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.getOrCreateLocked(chatID, userID)
}

func (s *UIStore) Update(chatID, userID int64, fn func(*UIState)) UIState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(chatID, userID)
	if fn != nil {
		fn(st)
	}
	if st.Menu == "" {
		st.Menu = menuMain
	}
	st.UpdatedAt = time.Now()
	return *st
}

// Reset keeps the panel message so it can still be edited.
func (s *UIStore) Reset(chatID, userID int64) UIState {
	return s.Update(chatID, userID, func(st *UIState) {
		msgID := st.MessageID
		*st = defaultState()
		st.MessageID = msgID
	})
}

// Prune forgets chats untouched for longer than maxIdle.
func (s *UIStore) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for key, st := range s.m {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.m, key)
			n++
		}
	}
	return n
}

func (s *UIStore) getOrCreateLocked(chatID, userID int64) *UIState {
	key := stateKey{ChatID: chatID, UserID: userID}
	if st, ok := s.m[key]; ok {
		return st
	}
	st := defaultState()
	s.m[key] = &st
	return s.m[key]
}

func defaultState() UIState {
	return UIState{
		Menu:      menuMain,
		UpdatedAt: time.Now(),
	}
}
