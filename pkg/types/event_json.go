package types

import (
	"encoding/json"
	"fmt"
)

// wireEvent is Event's on-disk/on-wire shape: Kind plus a raw payload that
// is decoded into the concrete type named by Kind. This is what makes the
// event log's "self-describing, stable schema with additive evolution"
// requirement (§6) possible — an old reader that doesn't recognize a new
// Kind can still see the envelope, even though it cannot decode Payload.
type wireEvent struct {
	SessionID      SessionID       `json:"sessionID"`
	SequenceNumber SequenceNumber  `json:"sequenceNumber"`
	Timestamp      Timestamp       `json:"timestamp"`
	Kind           EventKind       `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("types: marshal event payload: %w", err)
	}
	return json.Marshal(wireEvent{
		SessionID:      e.SessionID,
		SequenceNumber: e.SequenceNumber,
		Timestamp:      e.Timestamp,
		Kind:           e.Kind,
		Payload:        payload,
	})
}

// UnknownEventKindError is returned by UnmarshalJSON when a persisted event
// carries a Kind this build does not recognize. Per §6, this is only safe
// to ignore when the unknown event is the last one in the log; the event
// log's replay path surfaces it rather than silently skipping, since a gap
// in the middle of a session's history would desynchronize the reducer.
type UnknownEventKindError struct {
	Kind EventKind
}

func (e *UnknownEventKindError) Error() string {
	return fmt.Sprintf("types: unknown event kind %q", e.Kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}

	e.SessionID = w.SessionID
	e.SequenceNumber = w.SequenceNumber
	e.Timestamp = w.Timestamp
	e.Kind = w.Kind
	e.Payload = payload
	return nil
}

func decodePayload(kind EventKind, raw json.RawMessage) (EventPayload, error) {
	var p EventPayload
	switch kind {
	case EventSessionCreated:
		p = &SessionCreatedPayload{}
	case EventMessageAppended:
		p = &MessageAppendedPayload{}
	case EventToolCallStarted:
		p = &ToolCallStartedPayload{}
	case EventToolCallCompleted:
		p = &ToolCallCompletedPayload{}
	case EventToolCallFailed:
		p = &ToolCallFailedPayload{}
	case EventApprovalRequested:
		p = &ApprovalRequestedPayload{}
	case EventApprovalDecided:
		p = &ApprovalDecidedPayload{}
	case EventOperationStarted:
		p = &OperationStartedPayload{}
	case EventOperationCompleted:
		p = &OperationCompletedPayload{}
	case EventOperationCancelled:
		p = &OperationCancelledPayload{}
	case EventModelChanged:
		p = &ModelChangedPayload{}
	case EventCompactionProduced:
		p = &CompactionProducedPayload{}
	case EventSessionDeleted:
		p = &SessionDeletedPayload{}
	default:
		return nil, &UnknownEventKindError{Kind: kind}
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("types: decode payload for %q: %w", kind, err)
	}
	return dereference(p), nil
}

// dereference returns the pointed-to value so EventPayload.Kind()'s value
// receiver works uniformly whether the payload was built by hand (value)
// or decoded from JSON (pointer).
func dereference(p EventPayload) EventPayload {
	switch v := p.(type) {
	case *SessionCreatedPayload:
		return *v
	case *MessageAppendedPayload:
		return *v
	case *ToolCallStartedPayload:
		return *v
	case *ToolCallCompletedPayload:
		return *v
	case *ToolCallFailedPayload:
		return *v
	case *ApprovalRequestedPayload:
		return *v
	case *ApprovalDecidedPayload:
		return *v
	case *OperationStartedPayload:
		return *v
	case *OperationCompletedPayload:
		return *v
	case *OperationCancelledPayload:
		return *v
	case *ModelChangedPayload:
		return *v
	case *CompactionProducedPayload:
		return *v
	case *SessionDeletedPayload:
		return *v
	default:
		return p
	}
}
