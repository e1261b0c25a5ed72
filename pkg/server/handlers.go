package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
)

// logResponse is the body of /api/session and /api/subagent.
type logResponse struct {
	AgentID   string            `json:"agentId,omitempty"`
	SessionID string            `json:"sessionId"`
	Project   string            `json:"project"`
	Type      store.AgentType   `json:"type,omitempty"`
	Path      string            `json:"path"`
	Events    []json.RawMessage `json:"events"`
	Errors    []store.LineError `json:"errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnknown(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/")
	s.errorResponse(w, http.StatusNotFound, "Unknown endpoint: "+endpoint)
}

// --- Browsing ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.manager.ListProjects(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project := q.Get("project")
	if project == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing 'project' parameter")
		return
	}
	limit := jsonl.DefaultSessionLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid 'limit' parameter: %q", v))
			return
		}
		limit = n
	}

	sessions, err := s.manager.ListSessions(r.Context(), project, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"project":  project,
		"sessions": sessions,
	})
}

// --- Logs ---

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
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
	f, err := jsonl.ReadFile(path)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, logResponse{
		SessionID: sessionID,
		Project:   project,
		Path:      f.Path,
		Events:    f.Lines,
		Errors:    f.Errors,
	})
}

func (s *Server) handleGetSubAgent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project, sessionID, agentID := q.Get("project"), q.Get("sessionId"), q.Get("agentId")
	if project == "" || sessionID == "" || agentID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	agentType := store.ParseAgentType(q.Get("type"))

	path, err := s.manager.AgentFile(project, sessionID, agentID, agentType)
	if err != nil {
		s.lookupError(w, err, fmt.Sprintf("Agent not found: %s (type=%s)", agentID, agentType))
		return
	}
	f, err := jsonl.ReadFile(path)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, logResponse{
		AgentID:   agentID,
		SessionID: sessionID,
		Project:   project,
		Type:      agentType,
		Path:      f.Path,
		Events:    f.Lines,
		Errors:    f.Errors,
	})
}

func (s *Server) handleDiscoverAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project, sessionID := q.Get("project"), q.Get("sessionId")
	if project == "" || sessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters: project, sessionId")
		return
	}

	agents, err := s.manager.DiscoverAgents(r.Context(), project, sessionID)
	if err != nil {
		s.lookupError(w, err, "Project not found: "+project)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"project":   project,
		"agents":    agents,
	})
}

// --- Trees ---

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project, sessionID := q.Get("project"), q.Get("sessionId")
	if project == "" || sessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	res, err := s.loader.Load(r.Context(), project, sessionID)
	if err != nil {
		s.lookupError(w, err, "Session not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// lookupError maps not-found errors to 404 with notFoundMsg, anything else to 500.
func (s *Server) lookupError(w http.ResponseWriter, err error, notFoundMsg string) {
	if store.IsNotFound(err) {
		s.errorResponse(w, http.StatusNotFound, notFoundMsg)
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, err.Error())
}
