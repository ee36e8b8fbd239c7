// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
)

// Compile-time check
var _ ChatLogUseCase = (*chatLogUC)(nil)

// ChatLogUseCase is the durable conversation history.
type ChatLogUseCase interface {
	// AppendExchange persists one successful user/assistant pair, opening a
	// log session for sess on first use.
	AppendExchange(ctx context.Context, sess *model.Session, userText, reply string, emotion model.Emotion) error
	NewSession(ctx context.Context, title string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, limit int) ([]*model.ChatSession, error)
	Messages(ctx context.Context, sessionID string, limit int) ([]*model.ChatMessage, error)
	// DeleteSession succeeds when the session is already gone.
	DeleteSession(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.ChatStats, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

const titleRunes = 20

type chatLogUC struct {
	sessions repository.ChatSessionRepository
	tm       repository.TransactionManager
	log      zerolog.Logger
}

// NewChatLogUseCase accepts a nil tm; writes then run without a transaction.
func NewChatLogUseCase(sessions repository.ChatSessionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *chatLogUC {
	return &chatLogUC{
		sessions: sessions,
		tm:       tm,
		log:      logger.With().Str("component", "chat_log").Logger(),
	}
}

func (c *chatLogUC) AppendExchange(ctx context.Context, sess *model.Session, userText, reply string, emotion model.Emotion) error {
	logID := sess.LogID()
	if logID == "" {
		s, err := c.NewSession(ctx, titleFrom(userText))
		if err != nil {
			return err
		}
		logID = s.ID
		sess.SetLogID(logID)
	}

	userMsg, err := model.NewChatMessage(logID, model.RoleUser, userText, "")
	if err != nil {
		return err
	}
	botMsg, err := model.NewChatMessage(logID, model.RoleAssistant, reply, emotion)
	if err != nil {
		return err
	}

	write := func(ctx context.Context, qx any) error {
		if err := c.sessions.SaveMessage(ctx, qx, userMsg); err != nil {
			return fmt.Errorf("save user message: %w", err)
		}
		if err := c.sessions.SaveMessage(ctx, qx, botMsg); err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}
		return nil
	}
	if c.tm == nil {
		return write(ctx, repository.NoTX)
	}
	return c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return write(ctx, tx)
	})
}

func (c *chatLogUC) NewSession(ctx context.Context, title string) (*model.ChatSession, error) {
	s := model.NewChatSession(title)
	if err := c.sessions.Save(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	c.log.Debug().Str("log_session", s.ID).Msg("chat log session created")
	return s, nil
}

func (c *chatLogUC) ListSessions(ctx context.Context, limit int) ([]*model.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.sessions.List(ctx, repository.NoTX, limit)
}

func (c *chatLogUC) Messages(ctx context.Context, sessionID string, limit int) ([]*model.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := c.sessions.FindByID(ctx, repository.NoTX, sessionID); err != nil {
		return nil, err
	}
	return c.sessions.Messages(ctx, repository.NoTX, sessionID, limit)
}

func (c *chatLogUC) DeleteSession(ctx context.Context, id string) error {
	err := c.sessions.Delete(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (c *chatLogUC) Stats(ctx context.Context) (*model.ChatStats, error) {
	return c.sessions.Stats(ctx, repository.NoTX)
}

func (c *chatLogUC) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return c.sessions.CleanupOldMessages(ctx, retentionDays)
}

func titleFrom(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= titleRunes {
		return text
	}
	r := []rune(text)
	return string(r[:titleRunes]) + "..."
}
