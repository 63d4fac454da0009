// Package hotkey parses and canonicalizes global shortcut combinations such
// as "Ctrl+Shift+Alt+H". Registering shortcuts with the operating system is
// the capture frontend's concern; this package only validates and normalizes
// what gets stored in the preferences file.
package hotkey

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"unicode"
)

// Combo is a parsed shortcut: zero or more modifiers plus exactly one key.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool

	// Key is the canonical key name: a single upper-case letter or digit,
	// "F1".."F24", or a named key such as "Space" or "Escape".
	Key string
}

// DefaultCombo returns the platform's default dictation toggle shortcut.
func DefaultCombo() string {
	if runtime.GOOS == "darwin" {
		return "Control+Shift+Alt+H"
	}
	return "Ctrl+Shift+Alt+H"
}

// namedKeys maps lower-case spellings to canonical key names.
var namedKeys = map[string]string{
	"space":     "Space",
	"tab":       "Tab",
	"enter":     "Enter",
	"return":    "Enter",
	"escape":    "Escape",
	"esc":       "Escape",
	"backspace": "Backspace",
	"delete":    "Delete",
	"del":       "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
}

// Parse interprets s as a "+"-separated shortcut and returns the parsed
// [Combo]. Modifier aliases are accepted ("control" for Ctrl, "option" for
// Alt, "cmd"/"super"/"win" for Meta) and key names are case-insensitive.
//
// A combo must contain exactly one key, and at least one modifier unless the
// key is a function key. A bare letter would otherwise capture ordinary
// typing system-wide.
func Parse(s string) (Combo, error) {
	var c Combo
	for _, part := range strings.Split(s, "+") {
		p := strings.TrimSpace(part)
		if p == "" {
			return Combo{}, fmt.Errorf("hotkey: empty element in combo %q", s)
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt", "option", "opt":
			c.Alt = true
		case "meta", "cmd", "command", "super", "win":
			c.Meta = true
		default:
			key, err := normalizeKey(p)
			if err != nil {
				return Combo{}, fmt.Errorf("hotkey: combo %q: %w", s, err)
			}
			if c.Key != "" {
				return Combo{}, fmt.Errorf("hotkey: combo %q has more than one key (%s and %s)", s, c.Key, key)
			}
			c.Key = key
		}
	}
	if c.Key == "" {
		return Combo{}, fmt.Errorf("hotkey: combo %q has no key", s)
	}
	if !c.hasModifier() && !isFunctionKey(c.Key) {
		return Combo{}, fmt.Errorf("hotkey: combo %q needs a modifier; bare keys are only allowed for function keys", s)
	}
	return c, nil
}

// Normalize parses s and returns its canonical spelling, with modifiers in
// Ctrl, Shift, Alt, Meta order.
func Normalize(s string) (string, error) {
	c, err := Parse(s)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// IsValid reports whether s parses as a shortcut combo.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String renders the combo in canonical form, e.g. "Ctrl+Alt+P".
func (c Combo) String() string {
	parts := make([]string, 0, 5)
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	if c.Alt {
		parts = append(parts, "Alt")
	}
	if c.Meta {
		parts = append(parts, "Meta")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}

func (c Combo) hasModifier() bool {
	return c.Ctrl || c.Shift || c.Alt || c.Meta
}

func isFunctionKey(key string) bool {
	return len(key) >= 2 && key[0] == 'F' && key[1] >= '0' && key[1] <= '9'
}

func normalizeKey(p string) (string, error) {
	lower := strings.ToLower(p)
	if name, ok := namedKeys[lower]; ok {
		return name, nil
	}
	if len(lower) >= 2 && len(lower) <= 3 && lower[0] == 'f' {
		if num, err := strconv.Atoi(lower[1:]); err == nil && num >= 1 && num <= 24 {
			return "F" + strconv.Itoa(num), nil
		}
	}
	runes := []rune(p)
	if len(runes) == 1 && (unicode.IsLetter(runes[0]) || unicode.IsDigit(runes[0])) {
		return string(unicode.ToUpper(runes[0])), nil
	}
	return "", fmt.Errorf("unknown key %q", p)
}
