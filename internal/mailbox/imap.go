package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/pkg/models"
)

// imapClient is the keepalive-capable protocol variant. The session
// stays open across ticks; Refresh issues a NOOP and a failure there
// signals a dead connection without reconnecting.
type imapClient struct {
	account *models.Account
	token   *credential.Token
	conn    *client.Client
	logger  *slog.Logger
}

func dialIMAP(ctx context.Context, account *models.Account, token *credential.Token, uri *serverURI, opts Options) (*imapClient, error) {
	logger := opts.logger().With("protocol", "imap", "email", account.Address)
	logger.Info("connecting to IMAP server", "server", uri.addr())

	dialer := &net.Dialer{Timeout: opts.socketTimeout()}
	conn, err := tls.DialWithDialer(dialer, "tcp", uri.addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	imapConn, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapConn.Timeout = opts.socketTimeout()

	if token != nil {
		bearer, err := token.Get(ctx)
		if err != nil {
			imapConn.Logout()
			return nil, &AuthError{Address: account.Address, Err: err}
		}
		if err := imapConn.Authenticate(newXOAUTH2Client(account.Address, bearer)); err != nil {
			imapConn.Logout()
			return nil, &AuthError{Address: account.Address, Err: err}
		}
	} else {
		if err := imapConn.Login(account.Address, account.Secret); err != nil {
			imapConn.Logout()
			return nil, &AuthError{Address: account.Address, Err: err}
		}
	}

	logger.Info("IMAP login ok")
	return &imapClient{account: account, token: token, conn: imapConn, logger: logger}, nil
}

// Count selects INBOX read-only and returns its message count. The
// select also pins the mailbox for subsequent Fetch calls.
func (c *imapClient) Count(ctx context.Context) (int, error) {
	mbox, err := c.conn.Select("INBOX", true)
	if err != nil {
		return 0, fmt.Errorf("failed to select INBOX: %w", err)
	}
	return int(mbox.Messages), nil
}

// Fetch retrieves the full raw message at the 1-based sequence index.
// Count must have been called on this session first.
func (c *imapClient) Fetch(ctx context.Context, index int) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(index))

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.Fetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			<-done
			return nil, fmt.Errorf("failed to read message %d: %w", index, err)
		}
		raw = b
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", index, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d not found", index)
	}
	return raw, nil
}

func (c *imapClient) Refresh(ctx context.Context) error {
	return c.conn.Noop()
}

func (c *imapClient) Close() error {
	return c.conn.Logout()
}
