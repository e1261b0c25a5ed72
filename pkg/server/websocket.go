package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only API, same policy as the CORS headers
	},
}

// watchFrame is one message pushed on /api/tree/watch.
type watchFrame struct {
	*loader.Result
	Error string `json:"error,omitempty"`
}

// handleWatchTree pushes a freshly reconstructed tree every time the session
// file changes, starting with the current state.
func (s *Server) handleWatchTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project, sessionID := q.Get("project"), q.Get("sessionId")
	if project == "" || sessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	path, err := s.manager.SessionFile(project, sessionID)
	if err != nil {
		s.lookupError(w, err, "Session not found")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := jsonl.Watch(ctx, path, s.watchInterval)

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop (Pusher)
	go func() {
		defer wg.Done()
		defer ws.Close()

		for range changes {
			frame := watchFrame{}
			res, err := s.loader.Load(ctx, project, sessionID)
			if err != nil {
				slog.Warn("Reload failed", "project", project, "sessionID", sessionID, "error", err)
				frame.Error = err.Error()
			} else {
				frame.Result = res
			}
			if err := ws.WriteJSON(frame); err != nil {
				slog.Debug("Watch client gone", "error", err)
				cancel()
				return
			}
		}
	}()

	// Reader Loop: clients send nothing; reading detects the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}
	}

	cancel()
	wg.Wait()
}
