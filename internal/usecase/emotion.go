package usecase

import (
	"strings"
	"unicode/utf8"

	"avatar-live-server/internal/domain/model"
)

// EmotionClassifier scores a reply against keyword lists.
type EmotionClassifier struct {
	keywords map[model.Emotion][]string
}

// NewEmotionClassifier lowercases the keyword table once. A nil table uses
// the built-in one.
func NewEmotionClassifier(keywords map[model.Emotion][]string) *EmotionClassifier {
	if keywords == nil {
		keywords = model.DefaultEmotionKeywords()
	}
	lc := make(map[model.Emotion][]string, len(keywords))
	for e, words := range keywords {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				lc[e] = append(lc[e], w)
			}
		}
	}
	return &EmotionClassifier{keywords: lc}
}

// Classify returns the emotion with the strictly highest score; ties follow
// model.EmotionPriority and zero hits give neutral.
func (c *EmotionClassifier) Classify(text string) model.Emotion {
	text = strings.ToLower(text)
	if text == "" {
		return model.EmotionNeutral
	}
	best, bestScore := model.EmotionNeutral, 0
	for _, e := range model.EmotionPriority {
		score := 0
		for _, w := range c.keywords[e] {
			score += countOverlapping(text, w)
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	return best
}

// countOverlapping counts occurrences of sub in s, overlaps included.
func countOverlapping(s, sub string) int {
	n := 0
	for {
		i := strings.Index(s, sub)
		if i < 0 {
			return n
		}
		n++
		_, size := utf8.DecodeRuneInString(s[i:])
		s = s[i+size:]
	}
}
