package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/pkg/models"
)

// Client is one live, authenticated mailbox session. Implementations
// are not safe for concurrent use; the polling engine owns each
// account's client for the full duration of a tick.
type Client interface {
	// Count returns the number of messages currently in the inbox.
	Count(ctx context.Context) (int, error)
	// Fetch retrieves the raw message at the 1-based sequence index.
	Fetch(ctx context.Context, index int) ([]byte, error)
	// Refresh validates that the session is still usable. The IMAP
	// variant issues a NOOP; the POP3 variant tears the session down
	// and reconnects, because the protocol forbids re-querying mailbox
	// state on one session.
	Refresh(ctx context.Context) error
	Close() error
}

// Options tunes connection establishment
type Options struct {
	// SocketTimeout bounds the dial and every protocol command.
	SocketTimeout time.Duration
	Logger        *slog.Logger
}

func (o Options) socketTimeout() time.Duration {
	if o.SocketTimeout == 0 {
		return 10 * time.Second
	}
	return o.SocketTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// AuthError reports a rejected credential or bearer token
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Dial parses the account's access URI, selects the protocol variant
// by scheme, connects and authenticates. The secret is resolved
// through the credential store: a token form authenticates with an
// XOAUTH2 bearer exchange, anything else with plain credentials.
func Dial(ctx context.Context, account *models.Account, secrets *credential.Store, opts Options) (Client, error) {
	uri, err := parseServerURI(account.ServerURI)
	if err != nil {
		return nil, err
	}

	token, err := secrets.Resolve(account.Secret)
	if err != nil {
		return nil, err
	}

	switch uri.scheme {
	case schemeIMAPS:
		return dialIMAP(ctx, account, token, uri, opts)
	case schemePOP3S:
		return dialPOP3(ctx, account, token, uri, opts)
	default:
		// parseServerURI only returns the two supported schemes
		return nil, fmt.Errorf("unsupported scheme %q", uri.scheme)
	}
}
