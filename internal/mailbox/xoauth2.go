package mailbox

import (
	"fmt"

	"github.com/emersion/go-sasl"

	"github.com/marovskiy/mailgram/internal/credential"
)

// xoauth2Client implements the XOAUTH2 mechanism for go-imap's
// Authenticate. The library base64-encodes the initial response
// itself, so Start returns the raw SASL body.
type xoauth2Client struct {
	username string
	bearer   string
	failed   bool
}

var _ sasl.Client = (*xoauth2Client)(nil)

func newXOAUTH2Client(username, bearer string) *xoauth2Client {
	return &xoauth2Client{username: username, bearer: bearer}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", credential.XOAUTH2(c.username, c.bearer), nil
}

// Next handles the failure continuation: the server sends a base64
// error blob and expects an empty response before issuing its final
// NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if c.failed {
		return nil, fmt.Errorf("xoauth2: unexpected server challenge %q", challenge)
	}
	c.failed = true
	return []byte{}, nil
}
