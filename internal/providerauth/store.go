package providerauth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// CredentialKind discriminates the two credential shapes §4.8 names.
type CredentialKind string

const (
	CredentialAPIKey CredentialKind = "api_key"
	CredentialOAuth2 CredentialKind = "oauth2"
)

// Credential is one provider's stored credential, tagged by Kind.
type Credential struct {
	Kind   CredentialKind `json:"kind"`
	APIKey string         `json:"apiKey,omitempty"`
	OAuth2 *OAuth2Creds    `json:"oauth2,omitempty"`
}

// OAuth2Creds is §4.8's `OAuth2 { access, refresh, expires_at }`.
type OAuth2Creds struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresAt    types.Timestamp `json:"expiresAt"`
}

// Store is a JSON-file-backed credential store, one entry per provider ID,
// grounded on telnet2-opencode's cmd/opencode/commands/auth.go loadAuth/
// saveAuth. It is the credential store's own serialization point (§5: "The
// credential store is the one exception and is serialised behind its own
// actor/mutex").
type Store struct {
	path string

	mu          sync.Mutex
	credentials map[string]Credential
}

// NewStore constructs a Store backed by path (typically
// config.Paths.AuthPath()). The file is read lazily on first Get/Put rather
// than at construction, so a fresh install with no credentials yet doesn't
// need the directory to exist first.
func NewStore(path string) *Store {
	return &Store{path: path, credentials: nil}
}

func (s *Store) ensureLoaded() error {
	if s.credentials != nil {
		return nil
	}
	s.credentials = make(map[string]Credential)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.credentials)
}

// Get returns the stored credential for providerID, if any.
func (s *Store) Get(providerID string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return Credential{}, false, err
	}
	cred, ok := s.credentials[providerID]
	return cred, ok, nil
}

// Put stores cred for providerID and persists the store to disk, matching
// telnet2-opencode's saveAuth: 0600 permissions on the credentials file
// itself, since it contains live secrets (tighter than the 0644/0755 used
// elsewhere under config.Paths).
func (s *Store) Put(providerID string, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.credentials[providerID] = cred
	return s.persistLocked()
}

// Delete removes providerID's stored credential, if present.
func (s *Store) Delete(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	delete(s.credentials, providerID)
	return s.persistLocked()
}

// List returns every provider ID with a stored credential.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.credentials))
	for id := range s.credentials {
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.credentials, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
