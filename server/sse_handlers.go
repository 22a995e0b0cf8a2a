package server

import (
	"net/http"

	"toolagent/sse"
)

// handleRunEvents streams one run's events as Server-Sent Events: a single
// "plan" event when the run starts, then "done" or "error" when it ends.
// No per-loop or per-tool events are emitted. Adapted from the teacher's
// sse/writer.go.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.lookupRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run id")
		return
	}

	writer := sse.NewWriter(w)
	if writer == nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	for {
		select {
		case ev, open := <-rec.events:
			if !open {
				return
			}
			writer.SendEvent(ev.Event, ev.Data)
		case <-r.Context().Done():
			return
		}
	}
}
