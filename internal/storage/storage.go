package storage

import (
	"context"
	"errors"
	"time"

	"tryon-studio/internal/style"
)

var ErrNotFound = errors.New("look not found")

// Look is a persisted try-on result.
type Look struct {
	ID        string        `bson:"_id" json:"id"`
	SessionID string        `bson:"session_id" json:"session_id"`
	Prompt    string        `bson:"prompt" json:"prompt"`
	Options   style.Options `bson:"options" json:"options"`
	MIMEType  string        `bson:"mime_type" json:"mime_type"`
	Data      []byte        `bson:"data" json:"-"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

type LookStore interface {
	SaveLook(ctx context.Context, look Look) (Look, error)
	GetLook(ctx context.Context, id string) (Look, error)
	// ListLooks returns the newest looks of a session first.
	ListLooks(ctx context.Context, sessionID string, limit int) ([]Look, error)
	Close() error
}
