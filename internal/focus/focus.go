// Package focus probes whether text insertion is currently possible at the
// OS focus target.
package focus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxtype/internal/paste"
	"github.com/MrWong99/voxtype/internal/session"
)

// sentinel is the marker written to the clipboard during a probe. It never
// reaches the focused application.
const sentinel = "__VOXTYPE_PROBE_SENTINEL__"

// Prober checks insertion viability through the clipboard: it writes a
// sentinel value, reads it back, and restores the previous content. A probe
// never injects keystrokes, so it leaves no visible trace in the focused
// application.
//
// The check is deliberately optimistic. A working clipboard round trip is
// the part of the insertion path this process can verify; whether the
// focused element accepts the eventual paste is up to the OS.
type Prober struct {
	clipboard paste.Clipboard
}

var _ session.FocusProbe = (*Prober)(nil)

// NewProber returns a [Prober] using the given clipboard port.
func NewProber(clipboard paste.Clipboard) *Prober {
	return &Prober{clipboard: clipboard}
}

// CanAcceptText reports whether the clipboard-based insertion path is
// usable. The user's clipboard content is restored before returning, even
// when the probe fails.
func (p *Prober) CanAcceptText(ctx context.Context) (bool, error) {
	original, readErr := p.clipboard.ReadText()

	if err := p.clipboard.WriteText(sentinel); err != nil {
		return false, fmt.Errorf("focus: write clipboard: %w", err)
	}

	got, err := p.clipboard.ReadText()

	if readErr == nil {
		if rerr := p.clipboard.WriteText(original); rerr != nil {
			slog.Warn("focus: restoring clipboard failed", "error", rerr)
		}
	}

	if err != nil {
		return false, fmt.Errorf("focus: read clipboard: %w", err)
	}
	return got == sentinel, nil
}
