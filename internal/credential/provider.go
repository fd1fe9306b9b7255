package credential

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Provider is a static OAuth2 provider registration. Immutable after
// Register.
type Provider struct {
	Name         string
	TokenURL     string
	AuthURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]*Provider)
)

// Register makes a provider available for token:<name>:... and
// code:<name>:... secrets.
func Register(p *Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[p.Name] = p
}

// Lookup returns a registered provider by name
func Lookup(name string) (*Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[name]
	if !ok {
		names := make([]string, 0, len(providers))
		for n := range providers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown oauth2 provider %q, available providers: %v", name, names)
	}
	return p, nil
}

func (p *Provider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
			// Client credentials go in the POST body, not a basic-auth
			// header; the Microsoft consumer endpoint requires this.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Refresh performs a refresh-token grant and returns the new bearer
// value and its expiry.
func (p *Provider) Refresh(ctx context.Context, refreshCred string) (string, time.Time, error) {
	src := p.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshCred})
	tok, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("provider %s refresh: %w", p.Name, err)
	}
	return tok.AccessToken, tok.Expiry, nil
}

// Exchange performs a one-time authorization-code grant
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("provider %s code exchange: %w", p.Name, err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("provider %s code exchange returned no refresh token", p.Name)
	}
	return tok, nil
}

func init() {
	// Microsoft consumer accounts (outlook.com, hotmail.com)
	Register(&Provider{
		Name:        "ms",
		TokenURL:    "https://login.microsoftonline.com/consumers/oauth2/v2.0/token",
		AuthURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		ClientID:    "55797b5d-1e14-44bc-a7b3-52575eb1d6ef",
		RedirectURL: "https://localhost",
	})
	// Organizational (work/school) accounts use the common endpoint
	Register(&Provider{
		Name:        "ms-org",
		TokenURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		AuthURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		ClientID:    "55797b5d-1e14-44bc-a7b3-52575eb1d6ef",
		RedirectURL: "https://localhost",
	})
}
