// Package prefs persists and serves user preferences for the dictation
// daemon.
//
// Preferences live in a single YAML file (see [Store]). Readers always hit
// the file so that edits made by the settings frontend, or by hand, take
// effect on the next dictation without a restart. Writes go through an
// atomic replace so a crash mid-save never leaves a torn file behind.
//
// Provider API keys are resolved separately through a lookup chain, see
// [Store.APIKey].
package prefs

import "github.com/MrWong99/voxtype/pkg/provider/chat"

// Behavior holds the toggles that shape a dictation session.
type Behavior struct {
	// AutoPaste inserts the final text into the focused application when
	// true; when false the text only lands on the clipboard.
	AutoPaste bool `yaml:"auto_paste"`

	// SilenceSecs is how many seconds of silence end a dictation.
	SilenceSecs int `yaml:"silence_secs"`

	// StreamInsert types interim transcripts as they arrive instead of
	// waiting for the final refined text.
	StreamInsert bool `yaml:"stream_insert"`

	// Autostart launches the daemon on login.
	Autostart bool `yaml:"autostart"`

	// AIRefine runs the transcript through an AI refinement pass. When
	// false, only symbol replacement is applied.
	AIRefine bool `yaml:"ai_refine"`

	// AIProvider names the chat backend used for refinement
	// ("openrouter", "megallm", or "local").
	AIProvider string `yaml:"ai_provider"`

	// STTProvider names the speech-to-text vendor the capture frontend
	// streams to ("deepgram" or "elevenlabs").
	STTProvider string `yaml:"stt_provider"`

	// EchoCancellation and NoiseSuppression are passed through to the
	// capture frontend's audio constraints.
	EchoCancellation bool `yaml:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression"`
}

// DefaultBehavior returns the behavior used before the user has saved
// anything.
func DefaultBehavior() Behavior {
	return Behavior{
		AutoPaste:        true,
		SilenceSecs:      2,
		StreamInsert:     false,
		Autostart:        false,
		AIRefine:         true,
		AIProvider:       string(chat.OpenRouter),
		STTProvider:      "deepgram",
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// File is the full preferences document as stored on disk.
type File struct {
	Behavior Behavior `yaml:"behavior"`

	// Hotkey is the global toggle shortcut, e.g. "Ctrl+Shift+Alt+H".
	Hotkey string `yaml:"hotkey"`

	// Language is the BCP 47 transcription language code, e.g. "en-US".
	Language string `yaml:"language"`

	// Models maps a chat backend name to the model it should use,
	// overriding the backend's default.
	Models map[string]string `yaml:"models"`

	// Keys maps a provider name to an API key. Storing keys here is a
	// convenience for development; the environment and the OS keychain
	// are also consulted, see [Store.APIKey].
	Keys map[string]string `yaml:"keys"`
}

// defaultModels mirrors each chat backend's built-in default model. Used
// when the preferences file does not name one.
var defaultModels = map[chat.Name]string{
	chat.OpenRouter: "openai/gpt-oss-20b:free",
	chat.MegaLLM:    "gpt-4",
	chat.Local:      "llama3.2",
}
