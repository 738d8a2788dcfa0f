package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rflorenc/pan-deduper/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamRunLogs streams run log lines over WebSocket until the run ends.
func (s *Server) StreamRunLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job := s.Jobs.Get(id)
	if job == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	offset := 0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// read the state before the lines so nothing appended in between is lost
			status, _ := job.State()
			lines := job.LogsSince(offset)
			for _, line := range lines {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					return
				}
				offset++
			}
			if status != models.JobRunning && len(lines) == 0 {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, status))
				return
			}
		}
	}
}
