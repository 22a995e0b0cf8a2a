package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"toolagent/audit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleRunTail streams raw AuditEntry JSON lines over a WebSocket as they
// are appended to the audit log, replaying everything already on disk
// first. The log is re-read every 250ms and new entries are written out;
// the server never reads from the connection. Every entry in the log is
// sent, not only those of run id: the id only decides that the stream
// ends once that run is no longer running. The teacher imports
// gorilla/websocket without ever calling it; this is its first call site
// in this repo.
func (s *Server) handleRunTail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lookupRun(id); !ok {
		writeError(w, http.StatusNotFound, "unknown run id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sent := 0
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		entries, err := audit.ReadAll(s.auditLog.Path())
		if err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		if sent < len(entries) {
			for _, e := range entries[sent:] {
				if err := sendEntry(conn, e); err != nil {
					return
				}
			}
			sent = len(entries)
		}

		rec, ok := s.lookupRun(id)
		if ok && rec.Status != "running" && sent >= len(entries) {
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func sendEntry(conn *websocket.Conn, e audit.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}
