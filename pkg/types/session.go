package types

// Session is a durable conversation between a client and one or more LLM
// providers, bound to exactly one workspace for its lifetime.
type Session struct {
	ID         SessionID         `json:"id"`
	CreatedAt  Timestamp         `json:"createdAt"`
	UpdatedAt  Timestamp         `json:"updatedAt"`
	Workspace  WorkspaceConfig   `json:"workspace"`
	ToolConfig ToolConfig        `json:"toolConfig"`
	Default    ModelRef          `json:"defaultModel"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Deleted    bool              `json:"deleted,omitempty"`
}

// SessionSummary is the projection returned by ListSessions: enough to
// render a session list without replaying its full event log.
type SessionSummary struct {
	ID        SessionID `json:"id"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
	TipID     MessageID `json:"tipID,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ModelRef identifies a specific model from a specific provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

func (m ModelRef) String() string { return m.ProviderID + "/" + m.ModelID }

// ToolFilterKind discriminates the three shapes a session's tool allowlist
// can take (§4.6).
type ToolFilterKind string

const (
	ToolFilterAll     ToolFilterKind = "all"
	ToolFilterInclude ToolFilterKind = "include"
	ToolFilterExclude ToolFilterKind = "exclude"
)

// ToolFilter restricts which tool names are reachable in a session.
type ToolFilter struct {
	Kind  ToolFilterKind `json:"kind"`
	Names []string       `json:"names,omitempty"`
}

// Allows reports whether a tool name passes this filter.
func (f ToolFilter) Allows(name string) bool {
	switch f.Kind {
	case ToolFilterInclude:
		return containsString(f.Names, name)
	case ToolFilterExclude:
		return !containsString(f.Names, name)
	case ToolFilterAll, "":
		return true
	default:
		return true
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// ToolConfig is a session's policy + allowlist, consulted by both the tool
// executor (§4.5) and the approval gate (§4.6).
type ToolConfig struct {
	Filter ToolFilter `json:"filter"`
	// PreApproved names tools that never require approval regardless of
	// their declared RequiresApproval default.
	PreApproved []string `json:"preApproved,omitempty"`
	// RequiresApprovalDefault overrides a tool's own declared default,
	// keyed by tool name.
	RequiresApprovalDefault map[string]bool `json:"requiresApprovalDefault,omitempty"`
}

// RequiresApproval resolves whether a call to the named tool needs
// approval, given the tool's own declared default.
func (c ToolConfig) RequiresApproval(name string, toolDefault bool) bool {
	if containsString(c.PreApproved, name) {
		return false
	}
	if override, ok := c.RequiresApprovalDefault[name]; ok {
		return override
	}
	return toolDefault
}

// WorkspaceKind discriminates the two workspace shapes named in §6.
type WorkspaceKind string

const (
	WorkspaceLocal  WorkspaceKind = "local"
	WorkspaceRemote WorkspaceKind = "remote"
)

// WorkspaceConfig addresses the filesystem or remote service a session's
// workspace tools operate against.
type WorkspaceConfig struct {
	Kind    WorkspaceKind `json:"kind"`
	Path    string        `json:"path,omitempty"`    // WorkspaceLocal
	Address string        `json:"address,omitempty"` // WorkspaceRemote
	Auth    string        `json:"auth,omitempty"`     // WorkspaceRemote: opaque credential reference
}
