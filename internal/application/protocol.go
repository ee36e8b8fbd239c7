package application

import (
	"encoding/json"

	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/usecase"
)

// Inbound message types.
const (
	MsgChat           = "chat"
	MsgAudioData      = "audio_data"
	MsgExpression     = "expression"
	MsgMotion         = "motion"
	MsgTTSRequest     = "tts_request"
	MsgTrainVoice     = "train_voice"
	MsgSwitchTTSMode  = "switch_tts_mode"
	MsgGetVoiceStatus = "get_voice_status"
	MsgDeleteModel    = "delete_model"
	MsgTestVoice      = "test_voice"
	MsgDefaultMessage = "getDefaultMessage"
	MsgVoiceCommand   = "voice_command"
	MsgPing           = "ping"
)

// Outbound message types.
const (
	OutModelConfig     = "modelConfig"
	OutChatResponse    = "chat_response"
	OutModelCommand    = "modelCommand"
	OutASRResult       = "asr_result"
	OutTTSResponse     = "tts_response"
	OutTTSResult       = "tts_result"
	OutTTSBrowser      = "tts_browser"
	OutTTSModeSwitched = "tts_mode_switched"
	OutVoiceStatus     = "voice_status"
	OutVoiceTrained    = "voice_trained"
	OutModelDeleted    = "model_deleted"
	OutTestVoiceResult = "test_voice_result"
	OutPong            = "pong"
	OutError           = "error"
)

// Inbound is the union of every client message. Fields not used by a type
// are ignored.
type Inbound struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	Audio      string `json:"audio,omitempty"`
	AudioData  string `json:"audio_data,omitempty"`
	Format     string `json:"format,omitempty"`
	Expression string `json:"expression,omitempty"`
	Group      string `json:"group,omitempty"`
	Index      int    `json:"index,omitempty"`
	Text       string `json:"text,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Command    string `json:"command,omitempty"`
}

// AudioPayload accepts both spellings used by clients.
func (in Inbound) AudioPayload() string {
	if in.Audio != "" {
		return in.Audio
	}
	return in.AudioData
}

// Outbound is one server message.
type Outbound struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (o Outbound) Encode() ([]byte, error) { return json.Marshal(o) }

type ChatPayload struct {
	Text     string        `json:"text"`
	Emotion  model.Emotion `json:"emotion"`
	Fallback bool          `json:"fallback"`
}

type ASRPayload struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

type TTSPayload struct {
	AudioFile string `json:"audio_file,omitempty"`
	AudioData string `json:"audio_data,omitempty"`
	Text      string `json:"text"`
	Mode      string `json:"mode,omitempty"`
	AutoPlay  bool   `json:"auto_play,omitempty"`
}

type ResultPayload struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message"`
}

// TrainedPayload is voice_trained. AudioPlayFailed reports that the demo
// phrase could not be synthesized with the new voice.
type TrainedPayload struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	AudioPlayFailed bool   `json:"audio_play_failed,omitempty"`
}

// VoiceStatus is the voice_status payload: synthesis state plus training job.
type VoiceStatus struct {
	TTS      usecase.SpeechStatus `json:"tts"`
	Training model.TrainingJob    `json:"training"`
	Listen   string               `json:"listening,omitempty"`
}

func chatResponse(r model.Reply) Outbound {
	return Outbound{Type: OutChatResponse, Data: ChatPayload{Text: r.Text, Emotion: r.Emotion, Fallback: r.Fallback}}
}

func modelCommand(cmd model.AvatarCommand) Outbound {
	return Outbound{Type: OutModelCommand, Data: cmd}
}

func ttsBrowser(text string) Outbound {
	return Outbound{Type: OutTTSBrowser, Data: TTSPayload{Text: text}}
}

func errorMessage(msg string) Outbound {
	return Outbound{Type: OutError, Message: msg}
}
