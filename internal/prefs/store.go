package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MrWong99/voxtype/internal/hotkey"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"gopkg.in/yaml.v3"
)

// Store reads and writes the preferences file. The zero value is not usable;
// construct one with [NewStore] or [OpenDefault].
//
// Store never caches: every read parses the file again so concurrent edits
// by the settings frontend are picked up immediately. Methods are safe for
// concurrent use as long as writers go through [Store.Update].
type Store struct {
	path string
}

// NewStore returns a [Store] backed by the YAML file at path. The file does
// not have to exist yet; reads fall back to defaults and the first save
// creates it.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// OpenDefault returns a [Store] at the per-user default location,
// <user config dir>/voxtype/prefs.yaml.
func OpenDefault() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("prefs: locate user config dir: %w", err)
	}
	return NewStore(filepath.Join(dir, "voxtype", "prefs.yaml")), nil
}

// Path returns the file the store reads from and writes to.
func (s *Store) Path() string {
	return s.path
}

// Load reads the preferences file and returns the parsed document. A missing
// or empty file yields defaults; a malformed file is an error. Fields absent
// from the file keep their default values.
func (s *Store) Load() (*File, error) {
	f := defaultFile()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %q: %w", s.path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return defaultFile(), nil
		}
		return nil, fmt.Errorf("prefs: parse %q: %w", s.path, err)
	}
	f.normalize()
	return f, nil
}

// Behavior returns the current behavior preferences.
func (s *Store) Behavior() (Behavior, error) {
	f, err := s.Load()
	if err != nil {
		return Behavior{}, err
	}
	return f.Behavior, nil
}

// Hotkey returns the stored toggle shortcut, or the platform default when
// the file is missing or unreadable.
func (s *Store) Hotkey() string {
	f, err := s.Load()
	if err != nil {
		return hotkey.DefaultCombo()
	}
	return f.Hotkey
}

// ModelID returns the model configured for the given chat backend, falling
// back to the backend's default model.
func (s *Store) ModelID(provider chat.Name) string {
	if f, err := s.Load(); err == nil {
		if m := f.Models[string(provider)]; m != "" {
			return m
		}
	}
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[chat.OpenRouter]
}

// Update loads the current document, applies mutate, and saves the result
// atomically. Returns the saved document.
func (s *Store) Update(mutate func(*File)) (*File, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	mutate(f)
	f.normalize()
	if err := s.save(f); err != nil {
		return nil, err
	}
	return f, nil
}

// SetBehavior replaces the stored behavior preferences.
func (s *Store) SetBehavior(b Behavior) error {
	_, err := s.Update(func(f *File) { f.Behavior = b })
	return err
}

// SetHotkey validates, normalizes, and stores a new toggle shortcut.
func (s *Store) SetHotkey(combo string) error {
	normalized, err := hotkey.Normalize(combo)
	if err != nil {
		return err
	}
	_, err = s.Update(func(f *File) { f.Hotkey = normalized })
	return err
}

// SetModelID stores the model to use for the given chat backend.
func (s *Store) SetModelID(provider chat.Name, model string) error {
	_, err := s.Update(func(f *File) { f.Models[string(provider)] = model })
	return err
}

// SetLanguage stores the transcription language code.
func (s *Store) SetLanguage(code string) error {
	_, err := s.Update(func(f *File) { f.Language = code })
	return err
}

// save writes f to a temporary file in the target directory and renames it
// over the destination, so readers never observe a partial write.
func (s *Store) save(f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("prefs: replace %q: %w", s.path, err)
	}
	return nil
}

func defaultFile() *File {
	return &File{
		Behavior: DefaultBehavior(),
		Hotkey:   hotkey.DefaultCombo(),
		Language: "en-US",
		Models:   make(map[string]string),
		Keys:     make(map[string]string),
	}
}

// normalize fills gaps a hand-edited file may leave.
func (f *File) normalize() {
	if f.Behavior.AIProvider == "" {
		f.Behavior.AIProvider = string(chat.OpenRouter)
	}
	if f.Behavior.STTProvider == "" {
		f.Behavior.STTProvider = "deepgram"
	}
	if f.Hotkey == "" {
		f.Hotkey = hotkey.DefaultCombo()
	}
	if f.Language == "" {
		f.Language = "en-US"
	}
	if f.Models == nil {
		f.Models = make(map[string]string)
	}
	if f.Keys == nil {
		f.Keys = make(map[string]string)
	}
}
