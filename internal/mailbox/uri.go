package mailbox

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

const (
	schemeIMAPS = "imaps"
	schemePOP3S = "pop3s"
)

// ErrUnsupportedScheme is returned for access URIs this build cannot
// serve, including the STARTTLS variants.
var ErrUnsupportedScheme = errors.New("unsupported mailbox scheme")

var defaultPorts = map[string]int{
	schemeIMAPS: 993,
	schemePOP3S: 995,
}

type serverURI struct {
	scheme string
	host   string
	port   int
}

func (u *serverURI) addr() string {
	return net.JoinHostPort(u.host, strconv.Itoa(u.port))
}

// parseServerURI parses scheme://host[:port] and applies the scheme's
// default port.
func parseServerURI(raw string) (*serverURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server uri %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid server uri %q: missing host", raw)
	}

	switch u.Scheme {
	case schemeIMAPS, schemePOP3S:
	case "imap", "pop3":
		return nil, fmt.Errorf("%w: %q (STARTTLS variants are not implemented, use %ss)", ErrUnsupportedScheme, u.Scheme, u.Scheme)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	port := defaultPorts[u.Scheme]
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in server uri %q: %w", raw, err)
		}
	}

	return &serverURI{scheme: u.Scheme, host: u.Hostname(), port: port}, nil
}
