package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/engine"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the daemon and its optional dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		if hc == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"groups":     len(s.engine.DeviceGroupNames()),
		"components": components,
		"websocket": map[string]any{
			"clients": s.hub.ClientCount(),
			"dropped": s.hub.Dropped(),
		},
	})
}

// handleStats returns the engine counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// handleSnapshot returns groups, shader layers and operation lists.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// textDrawer collects overlay lines in draw order.
type textDrawer struct {
	lines []string
}

func (d *textDrawer) DrawText(text string, _ engine.Position, _ float64) {
	d.lines = append(d.lines, text)
}

// handleDebugText renders the debug overlay as plain text.
func (s *Server) handleDebugText(w http.ResponseWriter, _ *http.Request) {
	var d textDrawer
	s.engine.DebugDraw(&d, engine.Position{}, 1)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(strings.Join(d.lines, "\n") + "\n"))
}
