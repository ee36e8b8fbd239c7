package repository

import (
	"context"

	"avatar-live-server/internal/domain/model"
)

// -----------------------------
// Chat Log
// -----------------------------

type ChatSessionRepository interface {
	Save(ctx context.Context, qx any, session *model.ChatSession) error
	// SaveMessage appends a message and bumps the owning session's counters.
	SaveMessage(ctx context.Context, qx any, message *model.ChatMessage) error
	Delete(ctx context.Context, qx any, id string) error
	FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error)
	// List returns sessions, most recently updated first.
	List(ctx context.Context, qx any, limit int) ([]*model.ChatSession, error)
	// Messages returns the messages of one session in chronological order.
	Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error)
	Stats(ctx context.Context, qx any) (*model.ChatStats, error)
	// CleanupOldMessages deletes sessions (and their messages) not updated
	// within retentionDays and reports how many sessions were removed.
	CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error)
}
