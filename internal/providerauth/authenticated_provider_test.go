package providerauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

type staticResolver struct {
	directive AuthDirective
	err       error
}

func (r staticResolver) Resolve(ctx context.Context, model types.ModelRef) (AuthDirective, error) {
	return r.directive, r.err
}

type fakeRawProvider struct {
	calls   int
	results []struct {
		out <-chan session.ProviderEvent
		err error
	}
}

func (f *fakeRawProvider) Stream(ctx context.Context, directive AuthDirective, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	r := f.results[f.calls]
	f.calls++
	return r.out, r.err
}

func TestAuthenticatedProviderRetriesOnceOnAuthError(t *testing.T) {
	httpErr := &AuthHTTPError{Status: 401}
	ok := make(chan session.ProviderEvent, 1)
	close(ok)

	raw := &fakeRawProvider{}
	raw.results = append(raw.results,
		struct {
			out <-chan session.ProviderEvent
			err error
		}{nil, httpErr},
		struct {
			out <-chan session.ProviderEvent
			err error
		}{ok, nil},
	)

	directive := AuthDirective{
		OnAuthError: func(ctx context.Context, status int, body []byte) (AuthErrorAction, error) {
			return RetryOnce, nil
		},
	}
	p := NewAuthenticatedProvider(staticResolver{directive: directive}, raw)

	out, err := p.Stream(context.Background(), effect.CallLlm{OpID: "op1"})
	require.NoError(t, err)
	assert.Equal(t, ok, out)
	assert.Equal(t, 2, raw.calls)
}

func TestAuthenticatedProviderSurfacesReauthRequired(t *testing.T) {
	httpErr := &AuthHTTPError{Status: 403}
	raw := &fakeRawProvider{}
	raw.results = append(raw.results, struct {
		out <-chan session.ProviderEvent
		err error
	}{nil, httpErr})

	directive := AuthDirective{
		OnAuthError: func(ctx context.Context, status int, body []byte) (AuthErrorAction, error) {
			return ReauthRequired, nil
		},
	}
	p := NewAuthenticatedProvider(staticResolver{directive: directive}, raw)

	_, err := p.Stream(context.Background(), effect.CallLlm{OpID: "op1"})
	require.Error(t, err)
	var domainErr *types.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, types.ErrorAuthorization, domainErr.Kind)
	assert.Equal(t, 1, raw.calls)
}

func TestAuthenticatedProviderPropagatesNonAuthErrors(t *testing.T) {
	raw := &fakeRawProvider{}
	raw.results = append(raw.results, struct {
		out <-chan session.ProviderEvent
		err error
	}{nil, assert.AnError})

	p := NewAuthenticatedProvider(staticResolver{directive: AuthDirective{}}, raw)

	_, err := p.Stream(context.Background(), effect.CallLlm{OpID: "op1"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, raw.calls)
}
