package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"avatar-live-server/internal/domain"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one persisted turn of a conversation.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string // "user" | "assistant"
	Content   string
	Emotion   Emotion
	Timestamp time.Time
}

// NewChatMessage validates the role and stamps id and time.
func NewChatMessage(sessionID, role, content string, emotion Emotion) (*ChatMessage, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("role %q: %w", role, domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("empty session id: %w", domain.ErrInvalidArgument)
	}
	return &ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Emotion:   emotion,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ChatSession is the persisted header of a conversation log.
type ChatSession struct {
	ID           string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewChatSession(title string) *ChatSession {
	now := time.Now().UTC()
	if strings.TrimSpace(title) == "" {
		title = "聊天会话 " + now.Local().Format("2006-01-02 15:04")
	}
	return &ChatSession{
		ID:        ulid.Make().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ChatStats aggregates the chat log for the statistics endpoint.
type ChatStats struct {
	Sessions      int            `json:"total_sessions"`
	Messages      int            `json:"total_messages"`
	ByRole        map[string]int `json:"messages_by_role"`
	ByEmotion     map[string]int `json:"messages_by_emotion"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
}
