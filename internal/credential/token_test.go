package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// tokenEndpoint is a scripted OAuth2 token endpoint counting hits
type tokenEndpoint struct {
	srv      *httptest.Server
	requests atomic.Int64
	// lastGrant records the grant_type of the last request
	lastGrant atomic.Value
}

func newTokenEndpoint(t *testing.T, accessToken, refreshToken string, expiresIn int) *tokenEndpoint {
	t.Helper()
	ep := &tokenEndpoint{}
	ep.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep.requests.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ep.lastGrant.Store(r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"expires_in":    expiresIn,
			"refresh_token": refreshToken,
		})
	}))
	t.Cleanup(ep.srv.Close)
	return ep
}

var providerSeq atomic.Int64

func registerTestProvider(t *testing.T, tokenURL string) string {
	t.Helper()
	name := fmt.Sprintf("testprov%d", providerSeq.Add(1))
	Register(&Provider{
		Name:        name,
		TokenURL:    tokenURL,
		ClientID:    "test-client",
		RedirectURL: "https://localhost",
	})
	return name
}

func TestTokenGet_CachesWithinMargin(t *testing.T) {
	ep := newTokenEndpoint(t, "bearer-1", "", 3600)
	name := registerTestProvider(t, ep.srv.URL)
	ctx := context.Background()

	store := NewStore()
	token, err := store.Resolve("token:" + name + ":R1")
	assert.NoError(t, err)
	assert.NotNil(t, token)

	got, err := token.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "bearer-1", got)
	assert.Equal(t, int64(1), ep.requests.Load())
	assert.Equal(t, "refresh_token", ep.lastGrant.Load())

	// Within the safety margin: identical cached value, no network
	got, err = token.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "bearer-1", got)
	assert.Equal(t, int64(1), ep.requests.Load())
}

func TestTokenGet_RefreshesInsideMargin(t *testing.T) {
	// expires_in of 60s is well inside the 10 minute margin, so every
	// Get refreshes.
	ep := newTokenEndpoint(t, "bearer-short", "", 60)
	name := registerTestProvider(t, ep.srv.URL)
	ctx := context.Background()

	store := NewStore()
	token, err := store.Resolve("token:" + name + ":R1")
	assert.NoError(t, err)

	_, err = token.Get(ctx)
	assert.NoError(t, err)
	_, err = token.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), ep.requests.Load())
}

func TestTokenGet_RefreshFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	name := registerTestProvider(t, srv.URL)

	store := NewStore()
	token, err := store.Resolve("token:" + name + ":bad")
	assert.NoError(t, err)

	_, err = token.Get(context.Background())
	assert.Error(t, err)
}

func TestResolve_PlainPassword(t *testing.T) {
	store := NewStore()
	token, err := store.Resolve("just-a-password")
	assert.NoError(t, err)
	assert.Nil(t, token)
}

func TestResolve_UnknownProvider(t *testing.T) {
	store := NewStore()
	_, err := store.Resolve("token:no-such-provider:R1")
	assert.Error(t, err)
}

func TestResolve_SameTokenObject(t *testing.T) {
	ep := newTokenEndpoint(t, "bearer-1", "", 3600)
	name := registerTestProvider(t, ep.srv.URL)

	store := NewStore()
	first, err := store.Resolve("token:" + name + ":R1")
	assert.NoError(t, err)
	second, err := store.Resolve("token:" + name + ":R1")
	assert.NoError(t, err)
	assert.Same(t, first, second)
}

func TestExchangeCode(t *testing.T) {
	ep := newTokenEndpoint(t, "initial-bearer", "R1", 3600)
	name := registerTestProvider(t, ep.srv.URL)
	ctx := context.Background()

	store := NewStore()
	newSecret, err := store.ExchangeCode(ctx, "code:"+name+":ABC123")
	assert.NoError(t, err)
	assert.Equal(t, "token:"+name+":R1", newSecret)
	assert.Equal(t, "authorization_code", ep.lastGrant.Load())
	assert.Equal(t, int64(1), ep.requests.Load())

	// Resolving the rewritten secret returns the seeded token without
	// re-exchanging or refreshing.
	token, err := store.Resolve(newSecret)
	assert.NoError(t, err)
	got, err := token.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "initial-bearer", got)
	assert.Equal(t, int64(1), ep.requests.Load())
}

func TestExchangeCode_NotACode(t *testing.T) {
	store := NewStore()
	newSecret, err := store.ExchangeCode(context.Background(), "plain-password")
	assert.NoError(t, err)
	assert.Empty(t, newSecret)
}

func TestXOAUTH2Format(t *testing.T) {
	raw := XOAUTH2("user@example.com", "tok123")
	assert.Equal(t, "user=user@example.com\x01auth=Bearer tok123\x01\x01", string(raw))

	encoded := base64.StdEncoding.EncodeToString(raw)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	assert.NoError(t, err)
	assert.Equal(t, raw, decoded)
}
