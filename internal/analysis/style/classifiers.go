package style

import (
	"regexp"
	"strings"
)

const DefaultThreshold = 0.2

var (
	casualRe = regexp.MustCompile(`(?i)\b(lol|lmao|haha+|gonna|wanna|gotta|yeah|yep|nope|hey|btw|omg|u|ur|thx|kinda|dunno|cool)\b|\w'(s|re|m|ll|ve|d|t)\b|!!+`)
	formalRe = regexp.MustCompile(`(?i)\b(please|thank you|kindly|would you|could you|regards|furthermore|however|therefore|moreover|sincerely|appreciate|dear)\b`)

	technicalRe = regexp.MustCompile("(?i)\\b(api|function|database|algorithm|server|deploy\\w*|latency|regex|json|sql|compile\\w*|kubernetes|docker|variable|endpoint|config\\w*|runtime|thread|query|schema|protocol|bug|stack trace)\\b|`[^`]+`")
	simpleRe    = regexp.MustCompile(`(?i)\b(simple terms|explain like|eli5|what does .+ mean|i don'?t understand|confus\w*|in plain english|not sure what)\b`)

	emojiRe = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{1F1E6}-\x{1F1FF}]|(?:^|\s)(?::\)|:D|;\)|:P|<3|:\()`)
)

func share(messages []string, re *regexp.Regexp) float64 {
	if len(messages) == 0 {
		return 0
	}
	n := 0
	for _, m := range messages {
		if re.MatchString(m) {
			n++
		}
	}
	return float64(n) / float64(len(messages))
}

// DefaultClassifiers returns the regex heuristics for all four axes. A
// style is claimed only when the share of matching messages exceeds
// threshold.
func DefaultClassifiers(threshold float64) []Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return []Classifier{
		FormalityClassifier{Threshold: threshold},
		VerbosityClassifier{Threshold: threshold},
		EmojiClassifier{Threshold: threshold},
		TechnicalityClassifier{Threshold: threshold},
	}
}

type FormalityClassifier struct{ Threshold float64 }

func (FormalityClassifier) Axis() Axis { return AxisFormality }

func (c FormalityClassifier) Classify(messages []string) Label {
	casual, formal := share(messages, casualRe), share(messages, formalRe)
	switch {
	case casual > c.Threshold && casual >= formal:
		return Casual
	case formal > c.Threshold:
		return Formal
	}
	return Neutral
}

// VerbosityClassifier buckets messages as short (<= ShortWords) or long
// (>= LongWords).
type VerbosityClassifier struct {
	Threshold  float64
	ShortWords int
	LongWords  int
}

func (VerbosityClassifier) Axis() Axis { return AxisVerbosity }

func (c VerbosityClassifier) Classify(messages []string) Label {
	short, long := c.ShortWords, c.LongWords
	if short <= 0 {
		short = 8
	}
	if long <= 0 {
		long = 40
	}
	var nShort, nLong int
	for _, m := range messages {
		w := len(strings.Fields(m))
		switch {
		case w <= short:
			nShort++
		case w >= long:
			nLong++
		}
	}
	total := float64(len(messages))
	longShare, shortShare := float64(nLong)/total, float64(nShort)/total
	switch {
	case longShare > c.Threshold && longShare >= shortShare:
		return Detailed
	case shortShare > 1-c.Threshold:
		return Concise
	}
	return Balanced
}

type EmojiClassifier struct{ Threshold float64 }

func (EmojiClassifier) Axis() Axis { return AxisEmoji }

func (c EmojiClassifier) Classify(messages []string) Label {
	s := share(messages, emojiRe)
	switch {
	case s == 0:
		return NoEmoji
	case s <= c.Threshold:
		return MinimalEmoji
	case s <= 0.5:
		return ModerateEmoji
	}
	return FrequentEmoji
}

type TechnicalityClassifier struct{ Threshold float64 }

func (TechnicalityClassifier) Axis() Axis { return AxisTechnicality }

func (c TechnicalityClassifier) Classify(messages []string) Label {
	tech, simple := share(messages, technicalRe), share(messages, simpleRe)
	switch {
	case tech > c.Threshold && tech >= simple:
		return Technical
	case simple > c.Threshold:
		return Simplified
	}
	return Balanced
}

// HasEmoji reports whether text contains an emoji or a classic emoticon.
func HasEmoji(text string) bool { return emojiRe.MatchString(text) }

// CountEmoji counts emoji and emoticon occurrences in text.
func CountEmoji(text string) int { return len(emojiRe.FindAllStringIndex(text, -1)) }
