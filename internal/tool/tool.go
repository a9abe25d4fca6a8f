// Package tool implements the executor and backend registry described in
// SPEC_FULL.md §4.5: running a tool call against whichever backend owns
// that name and turning the outcome into the effect.Action the reducer
// expects back. Parameters are passed to the backend as given; checking
// them is left to each backend. Grounded on
// telnet2-opencode's internal/tool/{tool.go,registry.go}, with the
// Eino-wrapping machinery those files carry removed — concrete LLM
// plumbing is out of this package's scope, so a Tool only needs to satisfy
// this module's own Backend contract.
package tool

import (
	"context"
	"encoding/json"
)

// Definition is everything a backend publishes about one callable tool:
// enough for the registry to advertise it to the provider. The executor
// does not check a call's parameters against Parameters.
type Definition struct {
	Name             string
	Description      string
	Parameters       json.RawMessage // JSON Schema
	RequiresApproval bool            // declared default; session config may override it
}

// Backend is one source of tools: the built-in local toolset, a workspace's
// remote toolset, or an MCP server (§4.10/§4.11). A Registry aggregates
// zero or more backends.
type Backend interface {
	// Name identifies the backend for logging and resolution-precedence
	// diagnostics (not part of any tool's own Name).
	Name() string
	Definitions(ctx context.Context) ([]Definition, error)
	Invoke(ctx context.Context, name string, parameters map[string]any) (Output, error)
}

// Output is a backend's result for a single successful invocation.
type Output struct {
	Title       string
	Text        string
	Structured  map[string]any
	Attachments []Attachment
}

// Attachment mirrors types.Attachment so backends don't need to import
// pkg/types just to produce one.
type Attachment struct {
	Filename  string
	MediaType string
	URL       string
}

// Error is returned by Backend.Invoke for an execution failure that isn't a
// Go-level error the executor should log and wrap generically — it lets a
// backend report a typed failure (e.g. invalid_params) directly.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }
