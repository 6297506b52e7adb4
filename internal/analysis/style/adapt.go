package style

import (
	"regexp"
	"strings"
)

// Change names one rewrite that Adapt applied.
type Change string

const (
	ChangeShortened  Change = "shortened"
	ChangeContracted Change = "contracted"
	ChangeExpanded   Change = "expanded_contractions"
	ChangeEmojiAdded Change = "emoji_added"
	ChangeEmojiStrip Change = "emoji_removed"
	ChangeSimplified Change = "vocabulary_simplified"
)

// ConciseSentences is the sentence target for concise users.
const ConciseSentences = 3

var (
	sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)\s*`)

	contractions = [][2]string{
		{"I am", "I'm"}, {"I have", "I've"}, {"I will", "I'll"},
		{"you are", "you're"}, {"You are", "You're"},
		{"we are", "we're"}, {"We are", "We're"},
		{"they are", "they're"}, {"it is", "it's"}, {"It is", "It's"},
		{"that is", "that's"}, {"That is", "That's"},
		{"do not", "don't"}, {"Do not", "Don't"},
		{"does not", "doesn't"}, {"did not", "didn't"},
		{"is not", "isn't"}, {"are not", "aren't"},
		{"cannot", "can't"}, {"Cannot", "Can't"},
		{"will not", "won't"}, {"would not", "wouldn't"},
		{"let us", "let's"}, {"Let us", "Let's"},
	}

	plainWords = [][2]string{
		{"utilize", "use"}, {"utilise", "use"}, {"approximately", "about"},
		{"subsequently", "then"}, {"terminate", "end"}, {"facilitate", "help"},
		{"commence", "start"}, {"sufficient", "enough"}, {"numerous", "many"},
		{"configuration", "setup"}, {"parameters", "settings"}, {"modify", "change"},
		{"demonstrate", "show"}, {"additional", "more"}, {"prior to", "before"},
	}
)

type rewrite struct {
	re *regexp.Regexp
	to string
}

func rewrites(pairs [][2]string, reverse bool) []rewrite {
	out := make([]rewrite, 0, len(pairs))
	for _, p := range pairs {
		from, to := p[0], p[1]
		if reverse {
			from, to = to, from
		}
		out = append(out, rewrite{re: regexp.MustCompile(`\b` + regexp.QuoteMeta(from) + `\b`), to: to})
	}
	return out
}

var (
	contractRules = rewrites(contractions, false)
	expandRules   = rewrites(contractions, true)
	plainRules    = rewrites(plainWords, false)
)

func apply(text string, rules []rewrite) (string, bool) {
	changed := false
	for _, r := range rules {
		if r.re.MatchString(text) {
			text = r.re.ReplaceAllLiteralString(text, r.to)
			changed = true
		}
	}
	return text, changed
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripEmoji(text string) string {
	out := emojiRe.ReplaceAllStringFunc(text, func(m string) string {
		if strings.TrimSpace(m) != m {
			return " "
		}
		return ""
	})
	return strings.Join(strings.Fields(out), " ")
}

// Adapt rewrites surface features of draft toward p. The words that carry
// facts are left as they are; only sentence count, contractions, emoji
// and register change.
func Adapt(draft string, p Profile) (string, []Change) {
	text := strings.TrimSpace(draft)
	if text == "" {
		return draft, nil
	}
	var changes []Change

	if p.Verbosity == Concise {
		if ss := sentences(text); len(ss) > ConciseSentences {
			text = strings.TrimSpace(strings.Join(ss[:ConciseSentences], ""))
			changes = append(changes, ChangeShortened)
		}
	}

	switch p.Formality {
	case Casual:
		if t, ok := apply(text, contractRules); ok {
			text = t
			changes = append(changes, ChangeContracted)
		}
	case Formal:
		if t, ok := apply(text, expandRules); ok {
			text = t
			changes = append(changes, ChangeExpanded)
		}
	}

	if p.Technicality == Simplified {
		if t, ok := apply(text, plainRules); ok {
			text = t
			changes = append(changes, ChangeSimplified)
		}
	}

	switch p.Emoji {
	case NoEmoji:
		if HasEmoji(text) {
			text = stripEmoji(text)
			changes = append(changes, ChangeEmojiStrip)
		}
	case ModerateEmoji:
		if !HasEmoji(text) {
			text += " 🙂"
			changes = append(changes, ChangeEmojiAdded)
		}
	case FrequentEmoji:
		if CountEmoji(text) < 2 {
			ss := sentences(text)
			if len(ss) > 1 {
				ss[0] = strings.TrimRight(ss[0], " ") + " 😊 "
				text = strings.TrimSpace(strings.Join(ss, ""))
			}
			if !strings.HasSuffix(text, "✨") {
				text += " ✨"
			}
			changes = append(changes, ChangeEmojiAdded)
		}
	}
	return text, changes
}
