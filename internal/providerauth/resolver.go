package providerauth

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// DefaultResolver is the Resolver built once at process start, wired against
// a loaded provider catalog and the on-disk credential Store.
type DefaultResolver struct {
	catalog Catalog
	store   *Store

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewResolver constructs a DefaultResolver.
func NewResolver(catalog Catalog, store *Store) *DefaultResolver {
	return &DefaultResolver{catalog: catalog, store: store, now: time.Now}
}

// Resolve implements Resolver (§4.8).
func (r *DefaultResolver) Resolve(ctx context.Context, model types.ModelRef) (AuthDirective, error) {
	info, ok := r.catalog.Lookup(model.ProviderID)
	if !ok {
		return AuthDirective{}, types.NewDomainError(types.ErrorProvider,
			fmt.Sprintf("unknown provider %q", model.ProviderID), nil)
	}

	cred, ok, err := r.store.Get(model.ProviderID)
	if err != nil {
		return AuthDirective{}, types.NewDomainError(types.ErrorInternal, "read credential store", err)
	}
	if !ok {
		cred, ok = r.envFallback(info)
	}
	if !ok {
		return AuthDirective{}, &ErrNoCredential{ProviderID: model.ProviderID}
	}

	switch cred.Kind {
	case CredentialOAuth2:
		return r.oauthDirective(ctx, info, cred)
	default:
		return r.apiKeyDirective(info, cred), nil
	}
}

// envFallback checks the provider's configured environment variable when
// nothing is in the credential store yet, grounded on telnet2-opencode's
// registry.go InitializeProviders auto-registration from
// ANTHROPIC_API_KEY/OPENAI_API_KEY/etc.
func (r *DefaultResolver) envFallback(info ProviderInfo) (Credential, bool) {
	if info.EnvVar == "" {
		return Credential{}, false
	}
	key := os.Getenv(info.EnvVar)
	if key == "" {
		return Credential{}, false
	}
	return Credential{Kind: CredentialAPIKey, APIKey: key}, true
}

func (r *DefaultResolver) apiKeyDirective(info ProviderInfo, cred Credential) AuthDirective {
	headers := map[string]string{}
	switch info.APIFormat {
	case "anthropic":
		headers["x-api-key"] = cred.APIKey
		headers["anthropic-version"] = "2023-06-01"
	default:
		headers["Authorization"] = "Bearer " + cred.APIKey
	}
	return AuthDirective{
		Headers:    headers,
		BaseURL:    info.BaseURL,
		AuthSource: "api_key:" + info.ID,
		OnAuthError: func(ctx context.Context, status int, body []byte) (AuthErrorAction, error) {
			// An API key is a static credential; a 401 against one means the
			// key itself is bad, which nothing at this layer can fix.
			return NoAction, nil
		},
	}
}

func (r *DefaultResolver) oauthConfig(info ProviderInfo) oauth2.Config {
	ep := info.OAuth
	return oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		RedirectURL:  ep.RedirectURL,
		Scopes:       ep.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.AuthURL,
			TokenURL: ep.TokenURL,
		},
	}
}

// oauthDirective refreshes cred's token before expiry (§4.8: "OAuth tokens
// are refreshed transparently before expires_at") using the stdlib-adjacent
// golang.org/x/oauth2 TokenSource, then persists any refreshed token back to
// the Store so the next call doesn't need to refresh again.
func (r *DefaultResolver) oauthDirective(ctx context.Context, info ProviderInfo, cred Credential) (AuthDirective, error) {
	if cred.OAuth2 == nil {
		return AuthDirective{}, types.NewDomainError(types.ErrorProvider, "oauth2 credential missing token pair", nil)
	}
	if info.OAuth == nil {
		return AuthDirective{}, types.NewDomainError(types.ErrorProvider,
			fmt.Sprintf("provider %q has no oauth2 endpoints configured", info.ID), nil)
	}

	token, err := r.refreshIfNeeded(ctx, info, cred)
	if err != nil {
		return AuthDirective{}, types.NewDomainError(types.ErrorProvider, "refresh oauth2 token", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + token.AccessToken}
	return AuthDirective{
		Headers:    headers,
		BaseURL:    info.BaseURL,
		AuthSource: "oauth2:" + info.ID,
		OnAuthError: func(ctx context.Context, status int, body []byte) (AuthErrorAction, error) {
			if status != 401 && status != 403 {
				return NoAction, nil
			}
			if _, err := r.refreshIfNeeded(ctx, info, cred); err != nil {
				return ReauthRequired, err
			}
			return RetryOnce, nil
		},
	}, nil
}

// refreshIfNeeded returns cred's current access token, refreshing and
// persisting it first if oauth2's TokenSource no longer considers it valid
// (expired, or within that library's short expiry margin).
func (r *DefaultResolver) refreshIfNeeded(ctx context.Context, info ProviderInfo, cred Credential) (*oauth2.Token, error) {
	oldToken := &oauth2.Token{
		AccessToken:  cred.OAuth2.AccessToken,
		RefreshToken: cred.OAuth2.RefreshToken,
		Expiry:       time.UnixMilli(int64(cred.OAuth2.ExpiresAt)),
	}

	cfg := r.oauthConfig(info)
	source := cfg.TokenSource(ctx, oldToken)
	newToken, err := source.Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != oldToken.AccessToken {
		logging.Info().Str("provider", info.ID).Msg("refreshed oauth2 token")
		updated := Credential{
			Kind: CredentialOAuth2,
			OAuth2: &OAuth2Creds{
				AccessToken:  newToken.AccessToken,
				RefreshToken: coalesce(newToken.RefreshToken, oldToken.RefreshToken),
				ExpiresAt:    types.Timestamp(newToken.Expiry.UnixMilli()),
			},
		}
		if err := r.store.Put(info.ID, updated); err != nil {
			logging.Warn().Err(err).Str("provider", info.ID).Msg("failed to persist refreshed oauth2 token")
		}
	}
	return newToken, nil
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
