package providerauth

import (
	"context"
	"errors"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// AuthHTTPError is what a RawProvider returns for an HTTP-level auth
// failure, carrying enough for an AuthDirective's OnAuthError to classify it
// (§4.8).
type AuthHTTPError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *AuthHTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "providerauth: provider returned an auth error"
}

func (e *AuthHTTPError) Unwrap() error { return e.Err }

// RawProvider is the concrete, per-provider HTTP streaming client this
// module deliberately never implements (session.Provider's own doc comment
// explains why: no chat-model framework is imported here). RawProvider
// differs from session.Provider only in taking an already-resolved
// AuthDirective, so it never has to know about the credential store itself.
type RawProvider interface {
	Stream(ctx context.Context, directive AuthDirective, req effect.CallLlm) (<-chan session.ProviderEvent, error)
}

// AuthenticatedProvider implements session.Provider: it resolves an
// AuthDirective before every call and, on an AuthHTTPError whose
// OnAuthError says RetryOnce, refreshes and retries exactly once
// transparently — no user-visible Error event for that case, matching §8
// scenario E5. A ReauthRequired verdict surfaces as a DomainError instead.
type AuthenticatedProvider struct {
	resolver Resolver
	raw      RawProvider
}

// NewAuthenticatedProvider constructs an AuthenticatedProvider.
func NewAuthenticatedProvider(resolver Resolver, raw RawProvider) *AuthenticatedProvider {
	return &AuthenticatedProvider{resolver: resolver, raw: raw}
}

// Stream implements session.Provider.
func (p *AuthenticatedProvider) Stream(ctx context.Context, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	directive, err := p.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	out, err := p.raw.Stream(ctx, directive, req)
	if err == nil {
		return out, nil
	}

	var httpErr *AuthHTTPError
	if !errors.As(err, &httpErr) || directive.OnAuthError == nil {
		return nil, err
	}

	action, actionErr := directive.OnAuthError(ctx, httpErr.Status, httpErr.Body)
	if actionErr != nil {
		return nil, types.NewDomainError(types.ErrorProvider, "auth error handling failed", actionErr)
	}

	switch action {
	case RetryOnce:
		retryDirective, err := p.resolver.Resolve(ctx, req.Model)
		if err != nil {
			return nil, err
		}
		return p.raw.Stream(ctx, retryDirective, req)
	case ReauthRequired:
		return nil, types.NewDomainError(types.ErrorAuthorization, "reauthentication required", httpErr)
	default:
		return nil, err
	}
}
