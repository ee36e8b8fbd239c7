package model

import "strings"

type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionSurprised Emotion = "surprised"
)

// EmotionPriority is the fixed tie-break order used by the classifier.
var EmotionPriority = []Emotion{EmotionHappy, EmotionSad, EmotionAngry, EmotionSurprised, EmotionNeutral}

func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry, EmotionSurprised:
		return true
	}
	return false
}

// ParseEmotion returns neutral for anything outside the closed set.
func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if e.Valid() {
		return e
	}
	return EmotionNeutral
}

// DefaultEmotionKeywords is the keyword table scored by the classifier.
func DefaultEmotionKeywords() map[Emotion][]string {
	return map[Emotion][]string{
		EmotionHappy:     {"开心", "高兴", "快乐", "哈哈", "笑", "😊", "😄", "好棒", "太好了", "棒极了", "happy", "joy", "excited"},
		EmotionSad:       {"难过", "伤心", "哭", "😢", "😭", "失望", "沮丧", "可惜", "sad", "sorry", "disappointed"},
		EmotionAngry:     {"生气", "愤怒", "气愤", "😠", "😡", "讨厌", "烦躁", "angry", "mad", "frustrated"},
		EmotionSurprised: {"惊讶", "震惊", "意外", "😲", "😱", "天哪", "不敢相信", "哇", "surprised", "amazing", "wow"},
	}
}
