package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// Decide reports whether a tool call may run without asking, given the
// session's static tool configuration and the reducer's remembered "always"
// decisions. It never consults the Gate — this is the policy half described
// in §4.6; Gate is only the mechanics of waiting for a reply once Decide
// says a call does need to ask.
func Decide(cfg types.ToolConfig, memory types.ApprovalMemory, toolName, command string, toolDefault bool) (requiresApproval bool) {
	if !cfg.RequiresApproval(toolName, toolDefault) {
		return false
	}
	if memory.Allows(toolName, command) {
		return false
	}
	return true
}

// DoomLoopThreshold is the number of identical consecutive calls (same tool,
// same parameters) that force a re-ask even if the call would otherwise be
// auto-approved. Supplements §4.6 with a safety net the original opencode
// implementation carries (internal/permission/doom_loop.go) but spec.md
// does not mention; it only ever makes a call MORE likely to need approval,
// never less, so it changes no documented invariant.
const DoomLoopThreshold = 3

// DoomLoopDetector tracks the last few tool calls per session to catch an
// agent stuck repeating the exact same call.
type DoomLoopDetector struct {
	mu      sync.Mutex
	history map[types.SessionID][]string
}

// NewDoomLoopDetector constructs an empty detector.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{history: make(map[types.SessionID][]string)}
}

// Check records one call and reports whether it completes a run of
// DoomLoopThreshold identical consecutive calls.
func (d *DoomLoopDetector) Check(sessionID types.SessionID, toolName string, parameters map[string]any) bool {
	hash := hashCall(toolName, parameters)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]
	loop := false
	if len(history) >= DoomLoopThreshold-1 {
		loop = true
		for i := len(history) - (DoomLoopThreshold - 1); i < len(history); i++ {
			if history[i] != hash {
				loop = false
				break
			}
		}
	}

	history = append(history, hash)
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	d.history[sessionID] = history
	return loop
}

// Reset drops a session's call history, e.g. once a human breaks the loop
// by answering a re-asked approval.
func (d *DoomLoopDetector) Reset(sessionID types.SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(toolName string, parameters map[string]any) string {
	data, _ := json.Marshal(struct {
		Tool   string         `json:"tool"`
		Params map[string]any `json:"params"`
	}{toolName, parameters})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
