package model

import (
	"math"
	"time"
)

type TrainingStatus string

const (
	TrainingIdle    TrainingStatus = "idle"
	TrainingRunning TrainingStatus = "training"
	TrainingReady   TrainingStatus = "ready"
	TrainingFailed  TrainingStatus = "error"
)

// TrainingStep is one named stage of a training run.
type TrainingStep struct {
	Key      string
	Progress int
	Label    string
	Message  string
}

// TrainingSteps is the ordered pipeline; progress values are strictly increasing.
var TrainingSteps = []TrainingStep{
	{Key: "check_files", Progress: 5, Label: "检查文件", Message: "验证训练数据文件..."},
	{Key: "preprocess_audio", Progress: 15, Label: "预处理音频", Message: "处理和分割音频文件..."},
	{Key: "prepare_text", Progress: 25, Label: "准备文本", Message: "处理训练文本数据..."},
	{Key: "extract_features", Progress: 35, Label: "特征提取", Message: "提取语音特征向量..."},
	{Key: "train_asr", Progress: 50, Label: "ASR训练", Message: "训练语音识别模型..."},
	{Key: "train_tts", Progress: 70, Label: "TTS训练", Message: "训练语音合成模型..."},
	{Key: "optimize", Progress: 85, Label: "模型优化", Message: "优化模型性能..."},
	{Key: "save", Progress: 95, Label: "验证保存", Message: "验证并保存训练结果..."},
}

// TrainingJob is the status snapshot of the voice training state machine.
type TrainingJob struct {
	Status    TrainingStatus `json:"status"`
	Progress  int            `json:"progress"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	ModelFile string         `json:"model_file"`
	Error     string         `json:"error,omitempty"`
	TrainedAt *time.Time     `json:"trained_at,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
}

func IdleTrainingJob() TrainingJob {
	return TrainingJob{Status: TrainingIdle}
}

type TrainingParams struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	TotalSamples int     `json:"total_samples"`
}

// TrainingArtifact is the persisted descriptor of a trained voice.
type TrainingArtifact struct {
	ModelName     string         `json:"model_name"`
	AudioSource   string         `json:"audio_source"`
	TextSource    string         `json:"text_source"`
	ReferenceText string         `json:"reference_text"`
	Status        TrainingStatus `json:"status"`
	TrainedAt     time.Time      `json:"trained_at"`
	ModelVersion  string         `json:"model_version"`
	QualityScore  float64        `json:"quality_score"`
	Training      TrainingParams `json:"training_config"`
}

// QualityScore grows with the epoch count, rounded to three places.
func QualityScore(epochs int) float64 {
	q := 0.92 + 0.05*(float64(epochs)/200)
	return math.Round(q*1000) / 1000
}

// ArtifactFileName is the descriptor file name of a trained voice.
func ArtifactFileName(modelName string) string {
	return modelName + "_model.json"
}
