// Package mediagroup collects the photos of a Telegram album. Telegram
// delivers each album item as its own message sharing a media group id.
package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

type Item struct {
	ChatID       int64
	UserID       int64
	MediaGroupID string
	Caption      string
	FileID       string
}

// Group is a flushed album in arrival order.
type Group struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
	// Dropped counts items past Limit.
	Dropped int
}

type Options struct {
	Debounce time.Duration
	// Limit caps the kept items per album; 0 keeps all of them.
	Limit   int
	OnFlush func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	limit    int
	onFlush  func(Group)
	groups   map[string]*pendingGroup
	stopped  bool
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}
	limit := opts.Limit
	if limit < 0 {
		limit = 0
	}

	return &Aggregator{
		debounce: debounce,
		limit:    limit,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

// Add records item and restarts the album's quiet timer. It reports false
// when the item was not accepted.
func (a *Aggregator) Add(item Item) bool {
	if item.MediaGroupID == "" || item.FileID == "" {
		return false
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return false
	}

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID: item.ChatID,
				UserID: item.UserID,
			},
		}
		a.groups[key] = pg
	}
	if a.limit > 0 && len(pg.group.FileIDs) >= a.limit {
		pg.group.Dropped++
	} else {
		pg.group.FileIDs = append(pg.group.FileIDs, item.FileID)
	}
	if item.Caption != "" {
		pg.group.Caption = item.Caption
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	return true
}

// Pending is the number of albums still waiting for their timer.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop flushes every pending album immediately and rejects later items.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	keys := make([]string, 0, len(a.groups))
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		keys = append(keys, key)
	}
	a.mu.Unlock()

	for _, key := range keys {
		a.flush(key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
