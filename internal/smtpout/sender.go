package smtpout

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marovskiy/mailgram/internal/credential"
)

// Mail is one outbound plaintext message
type Mail struct {
	ServerURI string
	From      string
	Secret    string
	To        string
	Subject   string
	Body      string
}

// Options tunes the SMTP session
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout == 0 {
		return 10 * time.Second
	}
	return o.Timeout
}

var defaultPorts = map[string]int{
	"smtp":          25,
	"smtps":         465,
	"smtp+starttls": 587,
}

// Send composes and transmits mail through the account's outbound
// server. The secret goes through the credential store, so token
// accounts authenticate with an XOAUTH2 bearer exchange.
func Send(ctx context.Context, mail Mail, secrets *credential.Store, opts Options) error {
	u, err := url.Parse(mail.ServerURI)
	if err != nil {
		return fmt.Errorf("invalid smtp uri %q: %w", mail.ServerURI, err)
	}
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return fmt.Errorf("unsupported smtp scheme %q", u.Scheme)
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port in smtp uri %q: %w", mail.ServerURI, err)
		}
	}
	host := u.Hostname()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: opts.timeout()}
	var conn net.Conn
	if u.Scheme == "smtps" {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, nil)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(opts.timeout()))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Quit()

	if u.Scheme == "smtp+starttls" {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	auth, err := buildAuth(ctx, mail, secrets, host, u.Scheme)
	if err != nil {
		return err
	}
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp login failed: %w", err)
	}

	// Fresh deadline for the transfer phase
	conn.SetDeadline(time.Now().Add(opts.timeout()))

	if err := client.Mail(mail.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(mail.To); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(compose(mail)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("successfully sent email", "from", mail.From, "to", mail.To)
	}
	return nil
}

func buildAuth(ctx context.Context, mail Mail, secrets *credential.Store, host, scheme string) (smtp.Auth, error) {
	token, err := secrets.Resolve(mail.Secret)
	if err != nil {
		return nil, err
	}
	if token == nil {
		if scheme == "smtp" {
			// smtp.PlainAuth refuses unencrypted sessions; the bare smtp
			// scheme is an explicit operator choice, so honor it.
			return &plainAuth{username: mail.From, password: mail.Secret}, nil
		}
		return smtp.PlainAuth("", mail.From, mail.Secret, host), nil
	}
	bearer, err := token.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain bearer token: %w", err)
	}
	return &xoauth2Auth{username: mail.From, bearer: bearer}, nil
}

// compose builds the plaintext MIME message
func compose(mail Mail) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + mail.From + "\r\n")
	sb.WriteString("To: " + mail.To + "\r\n")
	sb.WriteString("Subject: " + mail.Subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(mail.Body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// plainAuth is smtp.PlainAuth without the connection-security check,
// used only for the plain smtp scheme.
type plainAuth struct {
	username string
	password string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a *plainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return nil, fmt.Errorf("unexpected server challenge during PLAIN auth")
	}
	return nil, nil
}

// xoauth2Auth implements the XOAUTH2 mechanism for net/smtp. The
// library base64-encodes responses itself, so Start returns the raw
// SASL body.
type xoauth2Auth struct {
	username string
	bearer   string
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "XOAUTH2", credential.XOAUTH2(a.username, a.bearer), nil
}

// Next answers a failure continuation with an empty line so the server
// emits its final error status.
func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return []byte{}, nil
	}
	return nil, nil
}
