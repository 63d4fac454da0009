// Package health serves the liveness and readiness probes of the voxtype
// daemon.
//
//   - /healthz answers 200 whenever the process can serve HTTP. Tray
//     frontends poll it to decide whether the daemon is up and whether
//     their version matches.
//   - /readyz answers 200 only while every registered [Probe] passes, and
//     503 otherwise.
//
// Both respond with JSON carrying a top-level "status" of "ok" or "fail"
// and the daemon version. /readyz additionally reports each probe's
// outcome and latency, so a hanging Postgres shows up by name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Probe reports whether one dependency is usable. A nil return means
// healthy. Probes must respect ctx; a probe that ignores cancellation holds
// the /readyz response open for its own runtime.
type Probe func(ctx context.Context) error

type namedProbe struct {
	name  string
	probe Probe
}

// probeResult is the per-probe entry in the /readyz response.
type probeResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// payload is the response body of both endpoints.
type payload struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]probeResult `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. Safe for concurrent use; probes may
// be added while the handler is already serving.
type Handler struct {
	version string

	mu     sync.Mutex
	probes []namedProbe
}

// New creates a [Handler] reporting version. Dependencies register
// themselves afterwards through [Handler.Add].
func New(version string) *Handler {
	return &Handler{version: version}
}

// Add registers probe under name. The name keys the probe's entry in the
// /readyz response; registering the same name twice reports both runs under
// one key, so don't.
func (h *Handler) Add(name string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, namedProbe{name: name, probe: probe})
}

// Register attaches the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe. A process that reaches this handler is
// alive; there is nothing else to verify.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, payload{Status: "ok", Version: h.version})
}

// Readyz runs every registered probe and answers 200 when all pass. Probes
// run concurrently, each under its own timeout, so one slow dependency
// delays the response by its own budget and not by the sum.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	results := make([]probeResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.probe(ctx)
			results[i] = probeResult{Status: "ok", ElapsedMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Status = "fail"
				results[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	body := payload{Status: "ok", Version: h.version}
	status := http.StatusOK
	if len(probes) > 0 {
		body.Checks = make(map[string]probeResult, len(probes))
		for i, p := range probes {
			body.Checks[p.name] = results[i]
			if results[i].Status != "ok" {
				body.Status = "fail"
				status = http.StatusServiceUnavailable
			}
		}
	}
	writeJSON(w, status, body)
}

// writeJSON marshals before touching the ResponseWriter, so an encoding
// failure can still produce a clean 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
