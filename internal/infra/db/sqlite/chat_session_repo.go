package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
	"avatar-live-server/internal/infra/security"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

// ChatSessionRepo is the embedded chat log. Timestamps are unix milliseconds.
type ChatSessionRepo struct {
	db            *sql.DB
	encryptionSvc *security.EncryptionService
	now           func() time.Time
}

func NewChatSessionRepo(db *sql.DB, encryptionSvc *security.EncryptionService) *ChatSessionRepo {
	return &ChatSessionRepo{db: db, encryptionSvc: encryptionSvc, now: time.Now}
}

func (r *ChatSessionRepo) Save(ctx context.Context, qx any, s *model.ChatSession) error {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO chat_sessions (id, title, message_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		message_count = excluded.message_count,
		updated_at = excluded.updated_at`
	if _, err := ex.ExecContext(ctx, query, s.ID, s.Title, s.MessageCount, s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) SaveMessage(ctx context.Context, qx any, m *model.ChatMessage) error {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return err
	}
	payload, enc := m.Content, 0
	if r.encryptionSvc != nil {
		if payload, err = r.encryptionSvc.Seal(m.SessionID, m.Content); err != nil {
			return fmt.Errorf("encrypt msg: %w", err)
		}
		enc = 1
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	res, err := ex.ExecContext(ctx,
		`UPDATE chat_sessions SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		ts.UnixMilli(), m.SessionID)
	if err != nil {
		return fmt.Errorf("bump session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	_, err = ex.ExecContext(ctx, `
	INSERT INTO chat_messages (id, session_id, role, content, emotion, encrypted, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, payload, string(m.Emotion), enc, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) Delete(ctx context.Context, qx any, id string) error {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return nil, err
	}
	row := ex.QueryRowContext(ctx,
		`SELECT id, title, message_count, created_at, updated_at FROM chat_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (r *ChatSessionRepo) List(ctx context.Context, qx any, limit int) ([]*model.ChatSession, error) {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := ex.QueryContext(ctx, `
	SELECT id, title, message_count, created_at, updated_at
	FROM chat_sessions ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Messages returns the newest limit messages (all when limit <= 0) oldest first.
func (r *ChatSessionRepo) Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error) {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := ex.QueryContext(ctx, `
	SELECT id, role, content, emotion, encrypted, created_at FROM (
		SELECT id, role, content, emotion, encrypted, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	) ORDER BY created_at ASC, id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{SessionID: sessionID}
		var emotion string
		var enc bool
		var ts int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &emotion, &enc, &ts); err != nil {
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
		m.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) Stats(ctx context.Context, qx any) (*model.ChatStats, error) {
	ex, err := getExecutor(r.db, qx)
	if err != nil {
		return nil, err
	}
	st := &model.ChatStats{ByRole: map[string]int{}, ByEmotion: map[string]int{}}
	var last sql.NullInt64
	err = ex.QueryRowContext(ctx, `
	SELECT (SELECT COUNT(*) FROM chat_sessions),
	       (SELECT COUNT(*) FROM chat_messages),
	       (SELECT MAX(created_at) FROM chat_messages)`).Scan(&st.Sessions, &st.Messages, &last)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		st.LastMessageAt = &t
	}

	rows, err := ex.QueryContext(ctx, `SELECT role, emotion, COUNT(*) FROM chat_messages GROUP BY role, emotion`)
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
	cutoff := r.now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.ChatSession, error) {
	var s model.ChatSession
	var createdAt, updatedAt int64
	if err := row.Scan(&s.ID, &s.Title, &s.MessageCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &s, nil
}
