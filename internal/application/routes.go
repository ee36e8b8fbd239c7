package application

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/infra/logging"
	"avatar-live-server/internal/usecase"
)

type handlerFunc func(ctx context.Context, cl *client, in Inbound)

// replyIntensity is the expression strength used for chat replies.
const replyIntensity = 0.8

func (m *SessionManager) buildRoutes() map[string]handlerFunc {
	return map[string]handlerFunc{
		MsgChat:           m.handleChat,
		MsgAudioData:      m.handleAudio,
		MsgExpression:     m.handleExpression,
		MsgMotion:         m.handleMotion,
		MsgTTSRequest:     m.handleTTSRequest,
		MsgTrainVoice:     m.handleTrainVoice,
		MsgSwitchTTSMode:  m.handleSwitchMode,
		MsgGetVoiceStatus: m.handleVoiceStatus,
		MsgDeleteModel:    m.handleDeleteModel,
		MsgTestVoice:      m.handleTestVoice,
		MsgDefaultMessage: m.handleGreeting,
		MsgVoiceCommand:   m.handleVoiceCommand,
		MsgPing:           func(_ context.Context, cl *client, _ Inbound) { m.send(cl, Outbound{Type: OutPong}) },
	}
}

// respond runs one user turn: reply, expression, then speech.
func (m *SessionManager) respond(ctx context.Context, cl *client, text string) {
	reply := m.deps.Reply.Generate(ctx, cl.sess, text)
	m.send(cl, chatResponse(reply))
	m.send(cl, modelCommand(m.deps.Avatar.SetEmotion(cl.sess, string(reply.Emotion), replyIntensity)))

	m.speak(ctx, cl, reply.Text, OutTTSResult)
}

// speak synthesizes text and sends either audio or a browser delegation.
func (m *SessionManager) speak(ctx context.Context, cl *client, text, audioType string) {
	res, err := m.deps.Speech.Synthesize(ctx, text)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyInput) {
			logging.With(ctx, &m.log).Warn().Err(err).Msg("synthesis failed")
		}
		return
	}
	if res.Mode != model.SpeechAudio {
		m.send(cl, ttsBrowser(res.Text))
		return
	}
	payload := TTSPayload{AudioFile: res.AudioURL, AudioData: res.AudioData, Text: res.Text}
	if audioType == OutTTSResult {
		payload.Mode = m.deps.Speech.Mode()
	}
	m.send(cl, Outbound{Type: audioType, Data: payload})
}

func (m *SessionManager) handleChat(ctx context.Context, cl *client, in Inbound) {
	m.log.Debug().
		Str("conn_id", cl.conn.ID()).
		Str("text", logging.Redact(in.Message, m.cfg.Dev)).
		Msg("chat message")
	m.respond(ctx, cl, in.Message)
}

func (m *SessionManager) handleAudio(ctx context.Context, cl *client, in Inbound) {
	raw := in.AudioPayload()
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i > 0 {
		raw = raw[i+1:]
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		m.send(cl, errorMessage(m.deps.Phrases.T("malformed_message")))
		return
	}
	format := in.Format
	if format == "" {
		format = "webm"
	}

	text, err := m.deps.Recognition.Recognize(ctx, audio, format)
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		m.send(cl, Outbound{Type: OutASRResult, Data: ASRPayload{Error: m.deps.Phrases.T("asr_empty")}})
		return
	case err != nil:
		m.send(cl, Outbound{Type: OutASRResult, Data: ASRPayload{Error: m.deps.Phrases.T("asr_unavailable")}})
		return
	}
	m.send(cl, Outbound{Type: OutASRResult, Data: ASRPayload{Text: text}})
	m.respond(ctx, cl, text)
}

func (m *SessionManager) handleExpression(_ context.Context, cl *client, in Inbound) {
	m.send(cl, modelCommand(m.deps.Avatar.SetExpression(cl.sess, in.Expression)))
}

func (m *SessionManager) handleMotion(_ context.Context, cl *client, in Inbound) {
	m.send(cl, modelCommand(m.deps.Avatar.SetMotion(cl.sess, in.Group, in.Index)))
}

func (m *SessionManager) handleTTSRequest(ctx context.Context, cl *client, in Inbound) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		text = m.deps.Phrases.T("tts_demo")
	}
	m.speak(ctx, cl, text, OutTTSResponse)
}

func (m *SessionManager) handleTrainVoice(ctx context.Context, cl *client, _ Inbound) {
	// recorded before Start: a fast run may finish before Start returns
	prev := m.setRequester(cl)
	if err := m.deps.Training.Start(ctx); err != nil {
		m.restoreRequester(cl, prev)
		if errors.Is(err, domain.ErrJobConflict) {
			m.send(cl, errorMessage(m.deps.Phrases.T("training_busy")))
			return
		}
		logging.With(ctx, &m.log).Error().Err(err).Msg("start training")
		m.send(cl, errorMessage(m.deps.Phrases.T("internal_error")))
		return
	}
	m.send(cl, Outbound{Type: OutVoiceStatus, Data: m.voiceStatus(m.deps.Training.Status())})
}

func (m *SessionManager) handleSwitchMode(ctx context.Context, cl *client, in Inbound) {
	ok, err := m.deps.Speech.SwitchMode(ctx, in.Mode)
	res := ResultPayload{Success: ok, Mode: in.Mode}
	if ok {
		res.Message = m.deps.Phrases.T("tts_mode_switched", in.Mode)
	} else {
		logging.With(ctx, &m.log).Warn().Err(err).Str("mode", in.Mode).Msg("switch synthesis mode")
		res.Message = m.deps.Phrases.T("tts_mode_failed", in.Mode)
	}
	m.send(cl, Outbound{Type: OutTTSModeSwitched, Data: res})
	m.send(cl, Outbound{Type: OutVoiceStatus, Data: m.voiceStatus(m.deps.Training.Status())})
}

func (m *SessionManager) handleVoiceStatus(_ context.Context, cl *client, _ Inbound) {
	m.send(cl, Outbound{Type: OutVoiceStatus, Data: m.voiceStatus(m.deps.Training.Status())})
}

func (m *SessionManager) handleDeleteModel(ctx context.Context, cl *client, _ Inbound) {
	if err := m.DeleteVoiceModel(ctx); err != nil {
		if errors.Is(err, domain.ErrJobConflict) {
			m.send(cl, Outbound{Type: OutModelDeleted, Data: ResultPayload{Success: false, Message: m.deps.Phrases.T("training_busy")}})
			return
		}
		logging.With(ctx, &m.log).Error().Err(err).Msg("delete voice model")
		m.send(cl, errorMessage(m.deps.Phrases.T("internal_error")))
		return
	}
	m.send(cl, Outbound{Type: OutModelDeleted, Data: ResultPayload{Success: true, Message: m.deps.Phrases.T("model_deleted")}})
}

func (m *SessionManager) handleTestVoice(ctx context.Context, cl *client, in Inbound) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		text = m.deps.Phrases.T("test_voice")
	}
	mode := in.Mode
	if mode == "" {
		mode = m.deps.Speech.Mode()
	}

	if mode == usecase.ModeBrowser {
		m.send(cl, ttsBrowser(text))
		m.send(cl, Outbound{Type: OutTestVoiceResult, Data: ResultPayload{Success: true, Mode: mode}})
		return
	}

	res, err := m.deps.Speech.Preview(ctx, mode, text)
	if err != nil {
		logging.With(ctx, &m.log).Warn().Err(err).Str("mode", mode).Msg("voice test failed")
		m.send(cl, Outbound{Type: OutTestVoiceResult, Data: ResultPayload{Success: false, Mode: mode, Message: domain.Kind(err)}})
		return
	}
	if res.Mode != model.SpeechAudio {
		m.send(cl, ttsBrowser(res.Text))
	} else {
		m.send(cl, Outbound{Type: OutTTSResult, Data: TTSPayload{AudioFile: res.AudioURL, AudioData: res.AudioData, Text: res.Text, Mode: mode}})
	}
	m.send(cl, Outbound{Type: OutTestVoiceResult, Data: ResultPayload{Success: true, Mode: mode}})
}

// handleGreeting rotates through the configured greetings across all
// connections.
func (m *SessionManager) handleGreeting(_ context.Context, cl *client, _ Inbound) {
	greetings := m.deps.Phrases.List("greetings")
	if len(greetings) == 0 {
		return
	}
	m.greetMu.Lock()
	i := m.greetAt % len(greetings)
	m.greetAt++
	m.greetMu.Unlock()

	emotion := model.EmotionNeutral
	if i == 0 {
		emotion = model.EmotionHappy
	}
	m.send(cl, chatResponse(model.Reply{Text: greetings[i], Emotion: emotion}))
	m.send(cl, modelCommand(m.deps.Avatar.SetEmotion(cl.sess, string(emotion), replyIntensity)))
}

func (m *SessionManager) handleVoiceCommand(_ context.Context, cl *client, in Inbound) {
	var status, key string
	switch in.Command {
	case "start_listening":
		status, key = "listening", "voice_listening"
	case "stop_listening":
		status, key = "stopped", "voice_stopped"
	default:
		m.send(cl, errorMessage(m.deps.Phrases.T("voice_unknown", in.Command)))
		return
	}
	m.log.Debug().Str("conn_id", cl.conn.ID()).Str("status", status).Msg(m.deps.Phrases.T(key))
	vs := m.voiceStatus(m.deps.Training.Status())
	vs.Listen = status
	m.send(cl, Outbound{Type: OutVoiceStatus, Data: vs, Message: m.deps.Phrases.T(key)})
}
