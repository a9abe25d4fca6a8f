package types

// EventKind tags the payload carried by an Event. New variants must only
// ever be appended here (§6 "self-describing, stable schema with additive
// evolution") — removing or renumbering a constant breaks replay of
// existing logs.
type EventKind string

const (
	EventSessionCreated      EventKind = "session_created"
	EventMessageAppended     EventKind = "message_appended"
	EventToolCallStarted     EventKind = "tool_call_started"
	EventToolCallCompleted   EventKind = "tool_call_completed"
	EventToolCallFailed      EventKind = "tool_call_failed"
	EventApprovalRequested   EventKind = "approval_requested"
	EventApprovalDecided     EventKind = "approval_decided"
	EventOperationStarted    EventKind = "operation_started"
	EventOperationCompleted  EventKind = "operation_completed"
	EventOperationCancelled  EventKind = "operation_cancelled"
	EventModelChanged        EventKind = "model_changed"
	EventCompactionProduced  EventKind = "compaction_produced"
	EventSessionDeleted      EventKind = "session_deleted"
)

// Event is the persisted unit (§3): every state-changing fact in a
// session's life, ordered by SequenceNumber.
type Event struct {
	SessionID      SessionID      `json:"sessionID"`
	SequenceNumber SequenceNumber `json:"sequenceNumber"`
	Timestamp      Timestamp      `json:"timestamp"`
	Kind           EventKind      `json:"kind"`
	Payload        EventPayload   `json:"payload"`
}

// EventPayload is implemented by every concrete payload type below. The
// Kind method lets callers recover the tag without a type switch when only
// routing (not inspecting fields) is needed.
type EventPayload interface {
	Kind() EventKind
}

type SessionCreatedPayload struct {
	Session Session `json:"session"`
}

func (SessionCreatedPayload) Kind() EventKind { return EventSessionCreated }

type MessageAppendedPayload struct {
	Message Message `json:"message"`
}

func (MessageAppendedPayload) Kind() EventKind { return EventMessageAppended }

type ToolCallStartedPayload struct {
	ToolCall ToolCall `json:"toolCall"`
}

func (ToolCallStartedPayload) Kind() EventKind { return EventToolCallStarted }

// ToolCallCompletedPayload carries the MessageID the reducer should use for
// the synthesized ToolResult message it appends (§4.2): IDs are always an
// input to the reducer, never generated inside it, so replay stays
// deterministic.
type ToolCallCompletedPayload struct {
	ToolCallID ToolCallID `json:"toolCallID"`
	MessageID  MessageID  `json:"messageID"`
	Result     ToolResult `json:"result"`
}

func (ToolCallCompletedPayload) Kind() EventKind { return EventToolCallCompleted }

type ToolCallFailedPayload struct {
	ToolCallID ToolCallID `json:"toolCallID"`
	MessageID  MessageID  `json:"messageID"`
	Error      ToolError  `json:"error"`
}

func (ToolCallFailedPayload) Kind() EventKind { return EventToolCallFailed }

type ApprovalRequestedPayload struct {
	RequestID RequestID `json:"requestID"`
	ToolCall  ToolCall  `json:"toolCall"`
}

func (ApprovalRequestedPayload) Kind() EventKind { return EventApprovalRequested }

type ApprovalDecidedPayload struct {
	Decision ApprovalDecision `json:"decision"`
}

func (ApprovalDecidedPayload) Kind() EventKind { return EventApprovalDecided }

type OperationStartedPayload struct {
	OpID      OpID      `json:"opID"`
	StartedAt Timestamp `json:"startedAt"`
}

func (OperationStartedPayload) Kind() EventKind { return EventOperationStarted }

// OperationCompletedPayload marks an operation terminal. Error is empty on
// success; a non-empty Error models the "ends in Failed" case of §4.4/§7
// without a dedicated event kind, since §3 enumerates OperationCompleted as
// the sole non-cancelled terminal variant.
type OperationCompletedPayload struct {
	OpID  OpID   `json:"opID"`
	Error string `json:"error,omitempty"`
}

func (OperationCompletedPayload) Kind() EventKind { return EventOperationCompleted }

// OperationCancelledPayload names every tool call that was still pending at
// cancellation time, matching §4.2/§8 property 4 exactly.
type OperationCancelledPayload struct {
	OpID           OpID         `json:"opID"`
	PendingToolIDs []ToolCallID `json:"pendingToolCalls"`
}

func (OperationCancelledPayload) Kind() EventKind { return EventOperationCancelled }

type ModelChangedPayload struct {
	Model ModelRef `json:"model"`
}

func (ModelChangedPayload) Kind() EventKind { return EventModelChanged }

// CompactionProducedPayload records that the conversation tip was replaced
// by a shorter summary message (triggered when the estimated context
// reaches internal/agent's compaction threshold, a fraction of
// MaxContextTokens).
type CompactionProducedPayload struct {
	SummaryMessageID MessageID   `json:"summaryMessageID"`
	Replaced         []MessageID `json:"replaced"`
}

func (CompactionProducedPayload) Kind() EventKind { return EventCompactionProduced }

type SessionDeletedPayload struct {
	Hard bool `json:"hard"`
}

func (SessionDeletedPayload) Kind() EventKind { return EventSessionDeleted }
