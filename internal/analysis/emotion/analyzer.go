// Package emotion tags user turns with a coarse emotion label.
package emotion

import "strings"

type Label string

const (
	Neutral   Label = "neutral"
	Joy       Label = "joy"
	Sadness   Label = "sadness"
	Anger     Label = "anger"
	Fear      Label = "fear"
	Surprise  Label = "surprise"
	Gratitude Label = "gratitude"
)

var keywordBuckets = map[Label][]string{
	Joy: {
		"happy", "glad", "great", "awesome", "amazing", "love", "excited", "yay", "wonderful",
		"fantastic", "haha", "lol", "😂", "😄", "😊", "🎉",
	},
	Sadness: {
		"sad", "unhappy", "depressed", "lonely", "miss ", "cry", "crying", "upset", "hurt",
		"heartbroken", "down today", "tired of", "😢", "😭",
	},
	Anger: {
		"angry", "furious", "mad at", "annoyed", "pissed", "hate", "sick of", "fed up", "rage", "😠", "😡",
	},
	Fear: {
		"scared", "afraid", "worried", "anxious", "nervous", "panic", "terrified", "stress", "😨", "😰",
	},
	Surprise: {
		"wow", "no way", "unbelievable", "can't believe", "cant believe", "whoa", "omg", "😮", "😲",
	},
	Gratitude: {
		"thanks", "thank you", "grateful", "appreciate", "🙏",
	},
}

// order breaks ties deterministically.
var order = []Label{Anger, Fear, Sadness, Gratitude, Surprise, Joy}

// Decision is the winning label and its raw keyword score.
type Decision struct {
	Emotion Label
	Score   int
}

// Analyze scores text against the keyword buckets. Text with no hits is
// Neutral with score 0.
func Analyze(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int, len(keywordBuckets))
	for label, words := range keywordBuckets {
		for _, w := range words {
			if strings.Contains(normalized, w) {
				scores[label] += 3
			}
		}
	}
	if n := strings.Count(text, "!"); n > 0 {
		scores[Surprise] += n
		if scores[Joy] > 0 {
			scores[Joy] += 2
		}
	}

	best, bestScore := Neutral, 0
	for _, l := range order {
		if scores[l] > bestScore {
			best, bestScore = l, scores[l]
		}
	}
	// a lone exclamation mark is not an emotion
	if best == Surprise && bestScore < 3 {
		return Decision{Emotion: Neutral}
	}
	return Decision{Emotion: best, Score: bestScore}
}

// Tag returns the label to store on a message, or nil for neutral text.
func Tag(text string) *string {
	d := Analyze(text)
	if d.Emotion == Neutral {
		return nil
	}
	s := string(d.Emotion)
	return &s
}
