package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestDetect_EmptyHistoryIsDefault(t *testing.T) {
	p := NewDetector(50, 0.2).Detect(nil)
	assert.Equal(t, Default(), p)
}

func TestDetect_CasualEmojiConcise(t *testing.T) {
	msgs := []string{
		"hey lol 😂",
		"yeah gonna try that 👍",
		"haha nice",
		"ok cool",
		"what's up",
	}
	p := NewDetector(50, 0.2).Detect(msgs)
	assert.Equal(t, Casual, p.Formality)
	assert.Equal(t, Concise, p.Verbosity)
	assert.Equal(t, ModerateEmoji, p.Emoji)
	assert.Equal(t, 5, p.Samples)
}

func TestDetect_FormalTechnicalDetailed(t *testing.T) {
	long := "Could you please explain how the database query planner chooses an index when the schema has " +
		"several composite keys, and furthermore whether the runtime statistics influence that decision in a " +
		"measurable way for the latency of the endpoint that serves our reports every morning?"
	p := NewDetector(50, 0.2).Detect(repeat(long, 4))
	assert.Equal(t, Formal, p.Formality)
	assert.Equal(t, Technical, p.Technicality)
	assert.Equal(t, Detailed, p.Verbosity)
	assert.Equal(t, NoEmoji, p.Emoji)
}

func TestDetect_ThresholdMustBeExceeded(t *testing.T) {
	// exactly one in five (20%) is not enough
	msgs := []string{"lol", "The meeting is at noon.", "The report is ready.", "The sky is blue.", "The car is red."}
	assert.Equal(t, Neutral, FormalityClassifier{Threshold: 0.2}.Classify(msgs))

	msgs[1] = "yeah sure"
	assert.Equal(t, Casual, FormalityClassifier{Threshold: 0.2}.Classify(msgs))
}

func TestDetect_UsesLastWindow(t *testing.T) {
	old := repeat("Could you kindly assist me, please.", 10)
	recent := repeat("lol ok", 3)
	p := NewDetector(3, 0.2).Detect(append(old, recent...))
	assert.Equal(t, Casual, p.Formality)
	assert.Equal(t, 3, p.Samples)
}

type fixedClassifier struct{}

func (fixedClassifier) Axis() Axis              { return AxisTechnicality }
func (fixedClassifier) Classify([]string) Label { return Simplified }

func TestDetect_PluggableClassifier(t *testing.T) {
	p := NewDetector(10, 0.2, fixedClassifier{}).Detect([]string{"anything"})
	assert.Equal(t, Simplified, p.Technicality)
	assert.Equal(t, Neutral, p.Formality)
}

func TestEmojiClassifier_Buckets(t *testing.T) {
	c := EmojiClassifier{Threshold: 0.2}
	assert.Equal(t, NoEmoji, c.Classify([]string{"a", "b"}))
	assert.Equal(t, MinimalEmoji, c.Classify([]string{"a :)", "b", "c", "d", "e", "f"}))
	assert.Equal(t, ModerateEmoji, c.Classify([]string{"a 🎉", "b", "c"}))
	assert.Equal(t, FrequentEmoji, c.Classify([]string{"a 🎉", "b ❤", "c"}))
}

func TestAdapt_Casual(t *testing.T) {
	out, changes := Adapt("I am sure it is fine. You do not need to worry.", Profile{Formality: Casual, Verbosity: Balanced, Emoji: MinimalEmoji, Technicality: Balanced})
	assert.Equal(t, "I'm sure it's fine. You don't need to worry.", out)
	assert.Equal(t, []Change{ChangeContracted}, changes)
}

func TestAdapt_FormalExpandsContractions(t *testing.T) {
	out, changes := Adapt("I'm sure it's fine, don't worry.", Profile{Formality: Formal})
	assert.Equal(t, "I am sure it is fine, do not worry.", out)
	assert.Contains(t, changes, ChangeExpanded)
}

func TestAdapt_ConciseKeepsLeadingSentences(t *testing.T) {
	draft := "One. Two! Three? Four. Five."
	out, changes := Adapt(draft, Profile{Verbosity: Concise})
	assert.Equal(t, "One. Two! Three?", out)
	assert.Contains(t, changes, ChangeShortened)
}

func TestAdapt_EmojiRules(t *testing.T) {
	out, _ := Adapt("Great job 🎉 see you", Profile{Emoji: NoEmoji})
	assert.Equal(t, "Great job see you", out)

	out, changes := Adapt("Great job.", Profile{Emoji: ModerateEmoji})
	assert.True(t, HasEmoji(out))
	assert.Contains(t, changes, ChangeEmojiAdded)

	out, _ = Adapt("Great job. See you soon.", Profile{Emoji: FrequentEmoji})
	assert.GreaterOrEqual(t, CountEmoji(out), 2)
}

func TestAdapt_SimplifiedVocabulary(t *testing.T) {
	out, changes := Adapt("You can utilize approximately ten parameters.", Profile{Technicality: Simplified})
	assert.Equal(t, "You can use about ten settings.", out)
	assert.Equal(t, []Change{ChangeSimplified}, changes)
}

func TestAdapt_DefaultLeavesTextAlone(t *testing.T) {
	draft := "Nothing to change here. Really."
	out, changes := Adapt(draft, Default())
	assert.Equal(t, draft, out)
	assert.Empty(t, changes)
	assert.False(t, strings.Contains(out, "🙂"))
}
