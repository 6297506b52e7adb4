// Package style infers how a user writes and reshapes replies to match.
//
// Each axis is decided by a Classifier so that the regex heuristics here
// can be replaced by learned models without touching callers.
package style

type Axis string

const (
	AxisFormality    Axis = "formality"
	AxisVerbosity    Axis = "verbosity"
	AxisEmoji        Axis = "emoji"
	AxisTechnicality Axis = "technicality"
)

type Label string

const (
	Casual  Label = "casual"
	Neutral Label = "neutral"
	Formal  Label = "formal"

	Concise  Label = "concise"
	Balanced Label = "balanced"
	Detailed Label = "detailed"

	NoEmoji       Label = "none"
	MinimalEmoji  Label = "minimal"
	ModerateEmoji Label = "moderate"
	FrequentEmoji Label = "frequent"

	Simplified Label = "simplified"
	Technical  Label = "technical"
)

// Classifier maps a window of user messages to one label on its axis.
type Classifier interface {
	Axis() Axis
	Classify(messages []string) Label
}

type Profile struct {
	Formality    Label `json:"formality"`
	Verbosity    Label `json:"verbosity"`
	Emoji        Label `json:"emoji"`
	Technicality Label `json:"technicality"`
	Samples      int   `json:"samples"`
}

// Default is the profile used when nothing is known about the user.
func Default() Profile {
	return Profile{Formality: Neutral, Verbosity: Balanced, Emoji: MinimalEmoji, Technicality: Balanced}
}

func (p Profile) get(a Axis) Label {
	switch a {
	case AxisFormality:
		return p.Formality
	case AxisVerbosity:
		return p.Verbosity
	case AxisEmoji:
		return p.Emoji
	case AxisTechnicality:
		return p.Technicality
	}
	return ""
}

func (p *Profile) set(a Axis, l Label) {
	switch a {
	case AxisFormality:
		p.Formality = l
	case AxisVerbosity:
		p.Verbosity = l
	case AxisEmoji:
		p.Emoji = l
	case AxisTechnicality:
		p.Technicality = l
	}
}

// Detector runs a set of classifiers over the most recent window of
// messages.
type Detector struct {
	classifiers []Classifier
	window      int
}

// NewDetector uses DefaultClassifiers(threshold) when none are given.
func NewDetector(window int, threshold float64, cs ...Classifier) *Detector {
	if window <= 0 {
		window = 50
	}
	if len(cs) == 0 {
		cs = DefaultClassifiers(threshold)
	}
	return &Detector{classifiers: cs, window: window}
}

func (d *Detector) Window() int { return d.window }

// Detect expects messages oldest first and looks only at the last window.
// Axes without a classifier keep their Default label.
func (d *Detector) Detect(messages []string) Profile {
	if len(messages) > d.window {
		messages = messages[len(messages)-d.window:]
	}
	p := Default()
	p.Samples = len(messages)
	if len(messages) == 0 {
		return p
	}
	for _, c := range d.classifiers {
		if l := c.Classify(messages); l != "" {
			p.set(c.Axis(), l)
		}
	}
	return p
}
