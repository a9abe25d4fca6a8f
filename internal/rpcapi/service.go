package rpcapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/reducer"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/internal/subscription"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// CreateSessionParams is the request body of POST /sessions.
type CreateSessionParams struct {
	Workspace  types.WorkspaceConfig `json:"workspace"`
	Default    types.ModelRef        `json:"defaultModel"`
	ToolConfig types.ToolConfig      `json:"toolConfig"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// SessionMetadata is the response body of GET /sessions/{id}: the durable
// Session record plus the live-state projection a client needs to render
// a session without separately replaying its event log.
type SessionMetadata struct {
	Session          types.Session               `json:"session"`
	Tip              types.MessageID             `json:"tip,omitempty"`
	PendingApprovals int                         `json:"pendingApprovals"`
	ActiveOperations []types.OpID                `json:"activeOperations,omitempty"`
}

// Service implements §6's six RPC operations against a session
// Supervisor, its backing event log, and the subscription fan-out each
// session's actor broadcasts into.
type Service struct {
	store      eventlog.Store
	supervisor *session.Supervisor
	fanout     *subscription.Fanout
}

// NewService constructs a Service. fanout must be the same Broadcaster
// instance the Supervisor's actors were constructed with, or Subscribe
// will never observe their live events.
func NewService(store eventlog.Store, supervisor *session.Supervisor, fanout *subscription.Fanout) *Service {
	return &Service{store: store, supervisor: supervisor, fanout: fanout}
}

// CreateSession appends a SessionCreated event and returns the minted
// session ID. There is no Actor method for this: a session is born as an
// event-log fact before any actor needs to be resident for it.
func (s *Service) CreateSession(ctx context.Context, params CreateSessionParams) (types.SessionID, error) {
	if params.Workspace.Kind == "" {
		return "", types.NewDomainError(types.ErrorValidation, "workspace.kind is required", nil)
	}
	if params.Default.ProviderID == "" || params.Default.ModelID == "" {
		return "", types.NewDomainError(types.ErrorValidation, "defaultModel must name a provider and a model", nil)
	}

	id := types.NewSessionID()
	now := nowMillis()
	sess := types.Session{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		Workspace:  params.Workspace,
		ToolConfig: params.ToolConfig,
		Default:    params.Default,
		Metadata:   params.Metadata,
	}

	if _, err := s.store.Append(ctx, id, []types.EventPayload{types.SessionCreatedPayload{Session: sess}}); err != nil {
		return "", types.NewDomainError(types.ErrorPersistence, "create session", err)
	}
	return id, nil
}

// GetSession returns the current projected state of a session, loading its
// actor (and thereby replaying its event log) if it is not already
// resident.
func (s *Service) GetSession(ctx context.Context, id types.SessionID) (SessionMetadata, error) {
	actor, err := s.supervisor.Get(ctx, id)
	if err != nil {
		return SessionMetadata{}, s.classifyEventlogErr("get session", err)
	}

	state := actor.State()
	if state.Session.ID == "" {
		return SessionMetadata{}, types.NewDomainError(types.ErrorValidation, fmt.Sprintf("session %s does not exist", id), nil)
	}
	if state.Deleted {
		return SessionMetadata{}, types.NewDomainError(types.ErrorValidation, fmt.Sprintf("session %s was deleted", id), nil)
	}

	return SessionMetadata{
		Session:          state.Session,
		Tip:              state.Tip,
		PendingApprovals: countPendingApprovals(state),
		ActiveOperations: activeOperationIDs(state),
	}, nil
}

// ListSessions projects the event log's denormalized summaries (§4.1),
// not actor state, so it works for sessions with no resident actor.
func (s *Service) ListSessions(ctx context.Context, filter eventlog.SessionFilter) ([]types.SessionSummary, error) {
	summaries, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, types.NewDomainError(types.ErrorPersistence, "list sessions", err)
	}
	return summaries, nil
}

// DeleteSession evicts any resident actor and appends a SessionDeleted
// event. force currently has no additional effect beyond evicting the
// actor before the event is appended, since this runtime has no
// long-running background work tied to a session beyond its actor
// goroutine.
func (s *Service) DeleteSession(ctx context.Context, id types.SessionID, force bool) error {
	s.supervisor.Evict(id)

	if _, err := s.store.Append(ctx, id, []types.EventPayload{types.SessionDeletedPayload{}}); err != nil {
		return s.classifyEventlogErr("delete session", err)
	}
	return nil
}

// Subscribe streams id's events from the given sequence number onward,
// per §4.9's backlog-then-live contract.
func (s *Service) Subscribe(ctx context.Context, id types.SessionID, from types.SequenceNumber) (<-chan subscription.Envelope, error) {
	out, err := s.fanout.Subscribe(ctx, s.store, id, from)
	if err != nil {
		return nil, s.classifyEventlogErr("subscribe", err)
	}
	return out, nil
}

func (s *Service) classifyEventlogErr(op string, err error) error {
	if errors.Is(err, eventlog.ErrNotFound) {
		return types.NewDomainError(types.ErrorValidation, op+": session not found", err)
	}
	return types.NewDomainError(types.ErrorPersistence, op, err)
}

func countPendingApprovals(state reducer.AppState) int {
	n := 0
	for _, pc := range state.PendingToolCalls {
		if pc.AwaitingApproval {
			n++
		}
	}
	return n
}

func activeOperationIDs(state reducer.AppState) []types.OpID {
	var ids []types.OpID
	for id, op := range state.Ops {
		if op.State == types.OpRunning || op.State == types.OpCompleting {
			ids = append(ids, id)
		}
	}
	return ids
}

func nowMillis() types.Timestamp { return types.Timestamp(time.Now().UnixMilli()) }
