// Package providerauth implements the provider-auth resolver (§4.8): given a
// model ID, produce the AuthDirective describing how to shape an outbound
// HTTP call to that model's provider, backed by a credential store that
// knows API keys and OAuth2 token pairs, with transparent refresh-before-
// expiry for the latter. Grounded on telnet2-opencode's
// internal/provider/registry.go for the config-driven provider lookup and
// environment-variable fallback, and its cmd/opencode/commands/auth.go for
// the on-disk credential store shape; golang.org/x/oauth2 usage is grounded
// on haasonsaas-nexus's internal/auth/oauth.go since the teacher itself never
// hand-writes oauth2 client code (its only oauth2-shaped code is generated
// SDK code).
package providerauth

import (
	"context"
	"fmt"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// InstructionPolicy decides how a provider's auth directive shapes the
// outbound system prompt (§4.8).
type InstructionPolicy string

const (
	InstructionNone            InstructionPolicy = ""
	InstructionPrefix          InstructionPolicy = "prefix"
	InstructionDefaultIfEmpty  InstructionPolicy = "default_if_empty"
	InstructionOverride        InstructionPolicy = "override"
)

// AuthErrorAction is what OnAuthError decides in response to a provider HTTP
// error (§4.8, §8 scenario E5).
type AuthErrorAction int

const (
	NoAction AuthErrorAction = iota
	RetryOnce
	ReauthRequired
)

func (a AuthErrorAction) String() string {
	switch a {
	case RetryOnce:
		return "retry_once"
	case ReauthRequired:
		return "reauth_required"
	default:
		return "no_action"
	}
}

// AuthDirective is the resolved per-request HTTP shaping for one provider
// call (§4.8/GLOSSARY). OnAuthError is bound to this specific resolution (it
// closes over the credential that produced it), so a caller can refresh and
// retry without re-resolving from scratch.
type AuthDirective struct {
	Headers           map[string]string
	BaseURL           string
	InstructionPolicy InstructionPolicy
	Instruction       string

	// AuthSource is recorded on each outbound call for observability and
	// model-visibility policy (§4.8).
	AuthSource string

	OnAuthError func(ctx context.Context, status int, body []byte) (AuthErrorAction, error)
}

// ApplyInstruction folds this directive's instruction policy into an
// existing system prompt.
func (d AuthDirective) ApplyInstruction(systemPrompt string) string {
	switch d.InstructionPolicy {
	case InstructionOverride:
		return d.Instruction
	case InstructionPrefix:
		if d.Instruction == "" {
			return systemPrompt
		}
		return d.Instruction + "\n\n" + systemPrompt
	case InstructionDefaultIfEmpty:
		if systemPrompt == "" {
			return d.Instruction
		}
		return systemPrompt
	default:
		return systemPrompt
	}
}

// Resolver produces an AuthDirective for a ModelRef.
type Resolver interface {
	Resolve(ctx context.Context, model types.ModelRef) (AuthDirective, error)
}

// ErrNoCredential is returned (wrapped) when a provider has no usable
// credential anywhere the resolver looks.
type ErrNoCredential struct {
	ProviderID string
}

func (e *ErrNoCredential) Error() string {
	return fmt.Sprintf("providerauth: no credential available for provider %q", e.ProviderID)
}
