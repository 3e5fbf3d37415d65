package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvandessel/rbdc/internal/models"
)

// ErrSuperseded is returned to a session whose query was replaced by a
// newer one before it finished.
var ErrSuperseded = fmt.Errorf("superseded by a newer query: %w", context.Canceled)

// Explorer tracks one in-flight query per client session. A new query
// from a session cancels that session's previous one; the superseded
// result is discarded.
type Explorer struct {
	svc *Service

	mu       sync.Mutex
	sessions map[string]*inflight
}

type inflight struct {
	cancel context.CancelFunc
}

// NewExplorer wraps svc with per-session cancellation.
func NewExplorer(svc *Service) *Explorer {
	return &Explorer{svc: svc, sessions: make(map[string]*inflight)}
}

// Service returns the underlying query service.
func (e *Explorer) Service() *Service {
	return e.svc
}

// Query runs p for session, canceling the session's earlier query if it is
// still running. An empty session disables supersession.
func (e *Explorer) Query(ctx context.Context, session string, p models.ParameterSet) (*Response, error) {
	if session == "" {
		return e.svc.Query(ctx, p)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	mine := &inflight{cancel: cancel}

	e.mu.Lock()
	if prev, ok := e.sessions[session]; ok {
		prev.cancel()
	}
	e.sessions[session] = mine
	e.mu.Unlock()

	resp, err := e.svc.Query(ctx, p)

	e.mu.Lock()
	current := e.sessions[session] == mine
	if current {
		delete(e.sessions, session)
	}
	e.mu.Unlock()

	if !current {
		return nil, ErrSuperseded
	}
	return resp, err
}

// Cancel stops the session's in-flight query, if any.
func (e *Explorer) Cancel(session string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.sessions[session]; ok {
		f.cancel()
		delete(e.sessions, session)
	}
}

// Active returns the number of sessions with a query in flight.
func (e *Explorer) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
