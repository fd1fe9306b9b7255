package credential

import (
	"context"
	"encoding/base64"
	"sync"
	"time"
)

// refreshMargin is how close to expiry a cached bearer may get before
// the next Get triggers a refresh.
const refreshMargin = 10 * time.Minute

// Token is a cached OAuth2 access token bound to one refresh
// credential. Safe for concurrent use.
type Token struct {
	mu          sync.Mutex
	provider    *Provider
	refreshCred string
	bearer      string
	expiry      time.Time
}

func newToken(p *Provider, refreshCred string) *Token {
	return &Token{provider: p, refreshCred: refreshCred}
}

// Get returns the bearer value, refreshing it first when the remaining
// TTL is inside the safety margin. A refresh failure leaves the cached
// state untouched and propagates.
func (t *Token) Get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bearer != "" && time.Until(t.expiry) > refreshMargin {
		return t.bearer, nil
	}

	bearer, expiry, err := t.provider.Refresh(ctx, t.refreshCred)
	if err != nil {
		return "", err
	}
	t.bearer = bearer
	t.expiry = expiry
	return t.bearer, nil
}

// seed installs an access token obtained out of band (the initial
// token from a code exchange).
func (t *Token) seed(bearer string, expiry time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bearer = bearer
	t.expiry = expiry
}

// SASL returns the base64 XOAUTH2 initial response for username
func (t *Token) SASL(ctx context.Context, username string) (string, error) {
	bearer, err := t.Get(ctx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(XOAUTH2(username, bearer)), nil
}

// XOAUTH2 builds the raw (pre-base64) SASL body for a bearer exchange
func XOAUTH2(username, bearer string) []byte {
	body := "user=" + username + "\x01" + "auth=Bearer " + bearer + "\x01\x01"
	return []byte(body)
}
