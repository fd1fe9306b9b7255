package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/pkg/models"
)

// pop3Client is the reconnect-required protocol variant. A POP3
// session snapshots the mailbox at login and never sees later
// arrivals, so Refresh tears the session down and reconnects instead
// of pinging it.
type pop3Client struct {
	account *models.Account
	token   *credential.Token
	uri     *serverURI
	opts    Options
	logger  *slog.Logger

	conn net.Conn
	text *textproto.Conn
}

func dialPOP3(ctx context.Context, account *models.Account, token *credential.Token, uri *serverURI, opts Options) (*pop3Client, error) {
	c := &pop3Client{
		account: account,
		token:   token,
		uri:     uri,
		opts:    opts,
		logger:  opts.logger().With("protocol", "pop3", "email", account.Address),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *pop3Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to POP3 server", "server", c.uri.addr())

	dialer := &net.Dialer{Timeout: c.opts.socketTimeout()}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.uri.addr(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.text = textproto.NewConn(conn)

	greeting, err := c.readLine()
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	c.logger.Info("POP3 server welcome", "greeting", greeting)

	if err := c.authenticate(ctx); err != nil {
		c.teardown()
		return err
	}
	c.logger.Info("POP3 login ok")
	return nil
}

func (c *pop3Client) authenticate(ctx context.Context) error {
	if c.token == nil {
		if _, err := c.cmd("USER %s", c.account.Address); err != nil {
			return &AuthError{Address: c.account.Address, Err: err}
		}
		if _, err := c.cmd("PASS %s", c.account.Secret); err != nil {
			return &AuthError{Address: c.account.Address, Err: err}
		}
		return nil
	}

	sasl, err := c.token.SASL(ctx, c.account.Address)
	if err != nil {
		return &AuthError{Address: c.account.Address, Err: err}
	}

	// AUTH XOAUTH2 answers with a "+" continuation, then the base64
	// SASL body goes on its own line.
	line, err := c.cmd("AUTH XOAUTH2")
	if err != nil {
		return &AuthError{Address: c.account.Address, Err: err}
	}
	if !strings.HasPrefix(line, "+") {
		return &AuthError{Address: c.account.Address, Err: fmt.Errorf("unexpected AUTH response %q", line)}
	}

	line, err = c.cmd("%s", sasl)
	if err != nil {
		return &AuthError{Address: c.account.Address, Err: err}
	}
	if strings.HasPrefix(line, "+ ") {
		// Failure detail arrives as another continuation; an empty
		// line makes the server emit its final -ERR.
		detail := strings.TrimPrefix(line, "+ ")
		if _, err := c.cmd(""); err != nil {
			return &AuthError{Address: c.account.Address, Err: fmt.Errorf("%v (%s)", err, detail)}
		}
		return &AuthError{Address: c.account.Address, Err: fmt.Errorf("bearer rejected: %s", detail)}
	}
	return nil
}

// cmd writes one command line and reads the single-line response
func (c *pop3Client) cmd(format string, args ...any) (string, error) {
	if c.text == nil {
		return "", fmt.Errorf("not connected")
	}
	c.conn.SetDeadline(time.Now().Add(c.opts.socketTimeout()))
	if err := c.text.PrintfLine(format, args...); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	return c.readLine()
}

func (c *pop3Client) readLine() (string, error) {
	line, err := c.text.ReadLine()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, "-ERR") {
		return "", fmt.Errorf("pop3: %s", strings.TrimSpace(strings.TrimPrefix(line, "-ERR")))
	}
	return line, nil
}

// Count issues STAT and returns the message count visible to this
// session.
func (c *pop3Client) Count(ctx context.Context) (int, error) {
	line, err := c.cmd("STAT")
	if err != nil {
		return 0, fmt.Errorf("failed to stat: %w", err)
	}
	// +OK <count> <octets>
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed STAT response %q", line)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed STAT count %q: %w", fields[1], err)
	}
	return count, nil
}

// Fetch retrieves one message with RETR. The multiline response is
// dot-terminated with byte stuffing, which DotReader undoes.
func (c *pop3Client) Fetch(ctx context.Context, index int) ([]byte, error) {
	if _, err := c.cmd("RETR %d", index); err != nil {
		return nil, fmt.Errorf("failed to retr %d: %w", index, err)
	}
	c.conn.SetDeadline(time.Now().Add(c.opts.socketTimeout()))
	raw, err := io.ReadAll(c.text.DotReader())
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", index, err)
	}
	return raw, nil
}

// Refresh reconnects unconditionally; re-querying state on a live POP3
// session keeps returning the login-time snapshot.
func (c *pop3Client) Refresh(ctx context.Context) error {
	c.teardown()
	return c.connect(ctx)
}

func (c *pop3Client) Close() error {
	if c.text == nil {
		return nil
	}
	_, err := c.cmd("QUIT")
	c.teardown()
	return err
}

func (c *pop3Client) teardown() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.text = nil
}
