// Package voicecmd recognizes spoken control phrases in final transcripts.
//
// A transcript that is, or ends with, a control phrase ("stop dictation",
// "discard that") is a command to the daemon, not text the user wants
// typed. Matching is fuzzy to tolerate STT noise: "stop dictations" or
// "Stop dictation." still count.
//
// Discard phrases are only honored when they make up the entire utterance;
// a discard phrase in the middle of a sentence is treated as dictation.
// Stop phrases may additionally trail ordinary dictation ("send it tonight
// stop dictation"), in which case the preceding text is kept.
package voicecmd

import (
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultThreshold is the minimum Jaro-Winkler similarity for a phrase hit.
const defaultThreshold = 0.85

// Action is what the daemon should do with a recognized control phrase.
type Action int

const (
	// None means the transcript is ordinary dictation.
	None Action = iota

	// Stop ends the session; the phrase itself is not inserted.
	Stop

	// Discard ends the session and throws the transcript away.
	Discard
)

// String returns the lower-case action name.
func (a Action) String() string {
	switch a {
	case Stop:
		return "stop"
	case Discard:
		return "discard"
	default:
		return "none"
	}
}

// Command is the result of classifying a final transcript.
type Command struct {
	Action Action

	// Text is the transcript with any trailing control phrase removed.
	// Empty when the whole utterance was a control phrase.
	Text string
}

type command struct {
	phrase string
	action Action
}

// defaultCommands lists the built-in control phrases. Phrases are stored
// normalized (lower case, single spaces).
var defaultCommands = []command{
	{phrase: "stop dictation", action: Stop},
	{phrase: "end dictation", action: Stop},
	{phrase: "cancel dictation", action: Discard},
	{phrase: "discard that", action: Discard},
	{phrase: "scratch that", action: Discard},
}

// Option is a functional option for configuring a [Filter].
type Option func(*Filter)

// WithThreshold sets the minimum Jaro-Winkler similarity for a phrase hit.
// Default: 0.85.
func WithThreshold(threshold float64) Option {
	return func(f *Filter) {
		f.threshold = threshold
	}
}

// Filter checks final transcripts against the control phrase set. It is
// read-only after construction and safe for concurrent use.
type Filter struct {
	threshold float64
	commands  []command
}

// New returns a [Filter] with the built-in phrase set.
func New(opts ...Option) *Filter {
	f := &Filter{
		threshold: defaultThreshold,
		commands:  defaultCommands,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check classifies a final transcript. The returned command carries the
// action to take and the text, if any, that should continue through the
// refinement pipeline.
func (f *Filter) Check(text string) Command {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{Action: None, Text: trimmed}
	}
	norm := normalize(trimmed)

	for _, c := range f.commands {
		if similarity(norm, c.phrase) >= f.threshold {
			slog.Info("voicecmd: control phrase recognized",
				"phrase", c.phrase,
				"action", c.action,
				"text", trimmed,
			)
			return Command{Action: c.action}
		}
	}

	words := strings.Fields(norm)
	rawWords := strings.Fields(trimmed)
	for _, c := range f.commands {
		if c.action != Stop {
			continue
		}
		n := len(strings.Fields(c.phrase))
		if len(words) <= n {
			continue
		}
		tail := strings.Join(words[len(words)-n:], " ")
		if similarity(tail, c.phrase) >= f.threshold {
			remaining := strings.TrimSpace(strings.Join(rawWords[:len(rawWords)-n], " "))
			slog.Info("voicecmd: trailing stop phrase recognized",
				"phrase", c.phrase,
				"text", trimmed,
			)
			return Command{Action: Stop, Text: remaining}
		}
	}

	return Command{Action: None, Text: trimmed}
}

// normalize lowercases, strips terminal punctuation, and collapses
// whitespace so STT formatting does not defeat matching.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimRight(s, ".!?,;:")
	return strings.Join(strings.Fields(s), " ")
}

// similarity is the Jaro-Winkler score between candidate and phrase, also
// trying the space-stripped forms in case the STT glued or split words.
func similarity(candidate, phrase string) float64 {
	score := matchr.JaroWinkler(candidate, phrase, false)
	joined := strings.ReplaceAll(candidate, " ", "")
	joinedPhrase := strings.ReplaceAll(phrase, " ", "")
	if s := matchr.JaroWinkler(joined, joinedPhrase, false); s > score {
		score = s
	}
	return score
}
