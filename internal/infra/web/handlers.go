package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/infra/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyInput), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrUnknownProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

type sessionDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSessionDTO(s *model.ChatSession) sessionDTO {
	return sessionDTO{ID: s.ID, Title: s.Title, MessageCount: s.MessageCount, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

type messageDTO struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Emotion   model.Emotion `json:"emotion,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "time": time.Now().UTC()}
	if s.deps.Hub != nil {
		body["connections"] = s.deps.Hub.Connections()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleModelConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Avatar.Model())
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.opts.Client
	if s.deps.Speech != nil {
		cfg.TTSMode = s.deps.Speech.Mode()
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Stats.Status())
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats.Statistics(r.Context())
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("statistics")
		writeError(w, statusFor(err), "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSpeechProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Speech.Status())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ChatLog.ListSessions(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list sessions")
		writeError(w, statusFor(err), "failed to list sessions")
		return
	}
	out := make([]sessionDTO, 0, len(list))
	for _, cs := range list {
		out = append(out, toSessionDTO(cs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": out})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	cs, err := s.deps.ChatLog.NewSession(r.Context(), req.Title)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("new session")
		writeError(w, statusFor(err), "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "session": toSessionDTO(cs)})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.deps.ChatLog.Messages(r.Context(), id, queryInt(r, "limit", 0))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.With(r.Context(), s.log).Error().Err(err).Str("session_id", id).Msg("session messages")
		}
		writeError(w, statusFor(err), "failed to load messages")
		return
	}
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO{ID: m.ID, Role: m.Role, Content: m.Content, Emotion: m.Emotion, Timestamp: m.Timestamp})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id, "messages": out})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.ChatLog.DeleteSession(r.Context(), id); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Str("session_id", id).Msg("delete session")
		writeError(w, statusFor(err), "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteVoiceModel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Hub.DeleteVoiceModel(r.Context()); err != nil {
		if !errors.Is(err, domain.ErrJobConflict) {
			logging.With(r.Context(), s.log).Error().Err(err).Msg("delete voice model")
		}
		writeError(w, statusFor(err), domain.Kind(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleRecognize accepts a multipart "audio" file or a raw body.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var (
		audio  []byte
		err    error
		format = strings.TrimPrefix(r.URL.Query().Get("format"), ".")
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, hdr, ferr := r.FormFile("audio")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "missing audio file")
			return
		}
		defer file.Close()
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(hdr.Filename), ".")
		}
		audio, err = io.ReadAll(file)
	} else {
		audio, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
		return
	}
	if format == "" {
		format = "webm"
	}

	text, err := s.deps.Recognition.Recognize(r.Context(), audio, format)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyInput) {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("recognize")
		}
		writeError(w, statusFor(err), domain.Kind(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "text": text, "provider": s.deps.Recognition.Provider()})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.deps.Speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusFor(err), domain.Kind(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}
