package store

import (
	"context"
	"errors"
	"net/http"
)

// ErrNotFound is returned when a session, sub-agent or project does not exist.
var ErrNotFound = errors.New("not found")

// Loader fetches event logs and discovers the sub-agents that reference a session.
// Implementations must make a missing log distinguishable through IsNotFound.
type Loader interface {
	// LoadSession fetches the events of a top-level session.
	LoadSession(ctx context.Context, project, sessionID string) (*SessionData, error)

	// LoadSubAgent fetches the events of a sub-agent.
	// sessionID is the session the agent was discovered under.
	LoadSubAgent(ctx context.Context, project, sessionID, agentID string, agentType AgentType) (*SessionData, error)

	// DiscoverAgents lists the agents whose logs reference sessionID.
	DiscoverAgents(ctx context.Context, project, sessionID string) ([]AgentRef, error)
}

// Browser lists what is available to load.
type Browser interface {
	// ListProjects returns all project directories, most recently modified first.
	ListProjects(ctx context.Context) ([]ProjectInfo, error)

	// ListSessions returns up to limit sessions of a project, most recent first.
	ListSessions(ctx context.Context, project string, limit int) ([]SessionInfo, error)
}

// IsNotFound reports whether err means the requested log does not exist.
// It matches ErrNotFound and any error carrying a 404 status code.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode() == http.StatusNotFound
	}
	return false
}

// StatusOf returns the status code carried by err, or 0.
func StatusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return 0
}
