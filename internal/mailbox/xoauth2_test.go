package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXOAUTH2Client_Start(t *testing.T) {
	c := newXOAUTH2Client("user@example.com", "tok")
	mech, body, err := c.Start()
	assert.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=user@example.com\x01auth=Bearer tok\x01\x01", string(body))
}

func TestXOAUTH2Client_FailureContinuation(t *testing.T) {
	c := newXOAUTH2Client("user@example.com", "tok")

	// The first challenge carries the error blob; the client must answer
	// with an empty response so the server can emit its final NO.
	resp, err := c.Next([]byte(`{"status":"401"}`))
	assert.NoError(t, err)
	assert.Empty(t, resp)

	_, err = c.Next([]byte("again"))
	assert.Error(t, err)
}
