package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Secret string prefixes. Anything else is a plain password.
const (
	tokenPrefix = "token:"
	codePrefix  = "code:"
)

// Store caches Tokens keyed by refresh credential for the lifetime of
// the process. Created once at startup and passed by reference to
// everything that resolves secrets.
type Store struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewStore creates an empty token store
func NewStore() *Store {
	return &Store{tokens: make(map[string]*Token)}
}

func (s *Store) token(p *Provider, refreshCred string) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[refreshCred]
	if !ok {
		t = newToken(p, refreshCred)
		s.tokens[refreshCred] = t
	}
	return t
}

// Resolve interprets a stored secret. A token:<provider>:<refresh>
// secret resolves to the cached Token for that refresh credential; any
// other secret is a plain password and resolves to (nil, nil).
func (s *Store) Resolve(secret string) (*Token, error) {
	if !strings.HasPrefix(secret, tokenPrefix) {
		return nil, nil
	}
	name, refreshCred, ok := strings.Cut(strings.TrimPrefix(secret, tokenPrefix), ":")
	if !ok {
		return nil, fmt.Errorf("invalid secret %q, expected token:<provider>:<refresh_token>", secret)
	}
	p, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.token(p, refreshCred), nil
}

// ExchangeCode turns a one-time code:<provider>:<code> secret into the
// persistent token:<provider>:<refresh> form, seeding the store with
// the initial access token. Returns "" when the secret is not a code
// form. The caller must persist the returned secret: the one-time code
// cannot be redeemed twice.
func (s *Store) ExchangeCode(ctx context.Context, secret string) (string, error) {
	if !strings.HasPrefix(secret, codePrefix) {
		return "", nil
	}
	name, code, ok := strings.Cut(strings.TrimPrefix(secret, codePrefix), ":")
	if !ok {
		return "", fmt.Errorf("invalid secret %q, expected code:<provider>:<authorization_code>", secret)
	}
	p, err := Lookup(name)
	if err != nil {
		return "", err
	}

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	s.token(p, tok.RefreshToken).seed(tok.AccessToken, tok.Expiry)
	return tokenPrefix + name + ":" + tok.RefreshToken, nil
}
