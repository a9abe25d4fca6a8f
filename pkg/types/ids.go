// Package types provides the core data types shared across the session
// runtime: identifiers, the message DAG, events, tool calls, and the
// approval/workspace configuration attached to a session.
package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a durable conversation. Opaque to callers; always a
// ULID so creation order is recoverable without a side index.
type SessionID string

// MessageID identifies one node in a session's message DAG.
type MessageID string

// ToolCallID identifies a single tool invocation requested by the model.
type ToolCallID string

// OpID identifies one user-initiated operation (a turn and everything it
// cascades into).
type OpID string

// RequestID identifies a pending approval request.
type RequestID string

// SequenceNumber is the dense, per-session, monotonically increasing
// position of an event in the event log. The zero value is never assigned;
// sequence numbers start at 1.
type SequenceNumber uint64

// Timestamp is a Unix millisecond timestamp. Kept as a distinct type so
// reducer and event-log signatures never confuse it with other int64/uint64
// quantities.
type Timestamp int64

// NewSessionID mints a new session identifier.
func NewSessionID() SessionID { return SessionID(newULID()) }

// NewMessageID mints a new message identifier.
func NewMessageID() MessageID { return MessageID(newULID()) }

// NewToolCallID mints a new tool-call identifier.
func NewToolCallID() ToolCallID { return ToolCallID(newULID()) }

// NewOpID mints a new operation identifier.
func NewOpID() OpID { return OpID(newULID()) }

// NewRequestID mints a new approval-request identifier.
func NewRequestID() RequestID { return RequestID(newULID()) }

func newULID() string {
	return ulid.Make().String()
}

// String implementations keep the typed IDs usable directly in format
// verbs and map keys without an explicit conversion at every call site.
func (id SessionID) String() string   { return string(id) }
func (id MessageID) String() string   { return string(id) }
func (id ToolCallID) String() string  { return string(id) }
func (id OpID) String() string        { return string(id) }
func (id RequestID) String() string   { return string(id) }

// Validate reports whether the ID looks like a well-formed ULID. Empty IDs
// are always invalid. Nothing in this module calls it; client-supplied IDs
// reach the reducer unchecked.
func (id SessionID) Validate() error  { return validateULID(string(id)) }
func (id MessageID) Validate() error  { return validateULID(string(id)) }
func (id ToolCallID) Validate() error { return validateULID(string(id)) }
func (id OpID) Validate() error       { return validateULID(string(id)) }

func validateULID(s string) error {
	if s == "" {
		return fmt.Errorf("types: empty identifier")
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return fmt.Errorf("types: malformed identifier %q: %w", s, err)
	}
	return nil
}
