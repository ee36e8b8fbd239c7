package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
	"avatar-live-server/internal/infra/security"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

// ChatSessionRepo persists the chat log. Message bodies are encrypted at
// rest when an encryption service is configured.
type ChatSessionRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

func NewChatSessionRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool, encryptionSvc: encryptionSvc}
}

func (r *ChatSessionRepo) Save(ctx context.Context, qx any, s *model.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (id, title, message_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  message_count = EXCLUDED.message_count,
  updated_at = EXCLUDED.updated_at;`
	if _, err := execQ(ctx, r.pool, qx, q, s.ID, s.Title, s.MessageCount, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) SaveMessage(ctx context.Context, qx any, m *model.ChatMessage) error {
	payload := m.Content
	encFlag := false
	if r.encryptionSvc != nil {
		enc, err := r.encryptionSvc.Seal(m.SessionID, m.Content)
		if err != nil {
			return fmt.Errorf("encrypt msg: %w", err)
		}
		payload, encFlag = enc, true
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	const qBump = `UPDATE chat_sessions SET message_count = message_count + 1, updated_at = $2 WHERE id = $1;`
	tag, err := execQ(ctx, r.pool, qx, qBump, m.SessionID, ts)
	if err != nil {
		return fmt.Errorf("bump session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	const q = `
INSERT INTO chat_messages (id, session_id, role, content, emotion, encrypted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	if _, err := execQ(ctx, r.pool, qx, q, m.ID, m.SessionID, m.Role, payload, string(m.Emotion), encFlag, ts); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) Delete(ctx context.Context, qx any, id string) error {
	tag, err := execQ(ctx, r.pool, qx, `DELETE FROM chat_sessions WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	const q = `SELECT id, title, message_count, created_at, updated_at FROM chat_sessions WHERE id=$1;`
	var s model.ChatSession
	if err := pickRow(ctx, r.pool, qx, q, id).Scan(&s.ID, &s.Title, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

func (r *ChatSessionRepo) List(ctx context.Context, qx any, limit int) ([]*model.ChatSession, error) {
	const q = `
SELECT id, title, message_count, created_at, updated_at
  FROM chat_sessions ORDER BY updated_at DESC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, qx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatSession
	for rows.Next() {
		var s model.ChatSession
		if err := rows.Scan(&s.ID, &s.Title, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Messages returns the newest limit messages (all when limit <= 0) oldest first.
func (r *ChatSessionRepo) Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error) {
	const q = `
SELECT id, role, content, emotion, encrypted, created_at FROM (
  SELECT id, role, content, emotion, encrypted, created_at
    FROM chat_messages WHERE session_id=$1
   ORDER BY created_at DESC, id DESC
   LIMIT NULLIF($2, 0)
) t ORDER BY created_at ASC, id ASC;`
	if limit < 0 {
		limit = 0
	}
	rows, err := queryRows(ctx, r.pool, qx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{SessionID: sessionID}
		var emotion string
		var enc bool
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &emotion, &enc, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan msg: %w", err)
		}
		if enc {
			if r.encryptionSvc == nil {
				return nil, fmt.Errorf("message %s is encrypted but no key is configured", m.ID)
			}
			plain, err := r.encryptionSvc.Open(sessionID, m.Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt msg: %w", err)
			}
			m.Content = plain
		}
		m.Emotion = model.Emotion(emotion)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) Stats(ctx context.Context, qx any) (*model.ChatStats, error) {
	st := &model.ChatStats{ByRole: map[string]int{}, ByEmotion: map[string]int{}}
	var last *time.Time
	const qTotals = `SELECT (SELECT COUNT(*) FROM chat_sessions), (SELECT COUNT(*) FROM chat_messages), (SELECT MAX(created_at) FROM chat_messages);`
	if err := pickRow(ctx, r.pool, qx, qTotals).Scan(&st.Sessions, &st.Messages, &last); err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}
	st.LastMessageAt = last

	rows, err := queryRows(ctx, r.pool, qx, `SELECT role, emotion, COUNT(*) FROM chat_messages GROUP BY role, emotion;`)
	if err != nil {
		return nil, fmt.Errorf("stats breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role, emotion string
		var n int
		if err := rows.Scan(&role, &emotion, &n); err != nil {
			return nil, err
		}
		st.ByRole[role] += n
		if emotion != "" {
			st.ByEmotion[emotion] += n
		}
	}
	return st, rows.Err()
}

func (r *ChatSessionRepo) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	const q = `DELETE FROM chat_sessions WHERE updated_at < NOW() - ($1::int * INTERVAL '1 day');`
	tag, err := r.pool.Exec(ctx, q, retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
