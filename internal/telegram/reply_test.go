package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyTarget(t *testing.T) {
	forwarded := "New Email [user@x.com-12]\n" +
		"Subject: Question\n" +
		"From: A <a@b.com>\n" +
		"Date: Tue, 12 Aug 2025 10:00:00 +0000\n" +
		"ID: <xyz@b.com>\n" +
		"\n" +
		"body"

	account, recipient, ok := ParseReplyTarget(forwarded)
	require.True(t, ok)
	assert.Equal(t, "user@x.com", account)
	assert.Equal(t, "a@b.com", recipient)
}

func TestParseReplyTarget_BareAddressSender(t *testing.T) {
	forwarded := "New Email [relay@example.com-3]\n" +
		"Subject: hi\n" +
		"From:  someone@example.org\n" +
		"\n" +
		"body"

	account, recipient, ok := ParseReplyTarget(forwarded)
	require.True(t, ok)
	assert.Equal(t, "relay@example.com", account)
	assert.Equal(t, "someone@example.org", recipient)
}

func TestParseReplyTarget_NotAForward(t *testing.T) {
	_, _, ok := ParseReplyTarget("Error Summary during last 60 queries in duration 1h0m0s:\nAcc: a@b.com\n")
	assert.False(t, ok)
}

func TestSplitReply(t *testing.T) {
	subject, body, ok := SplitReply("Hello\n\nBody text")
	require.True(t, ok)
	assert.Equal(t, "Hello", subject)
	assert.Equal(t, "Body text", body)
}

func TestSplitReply_MultiParagraphBody(t *testing.T) {
	subject, body, ok := SplitReply("Re: invoice\n\nfirst paragraph\n\nsecond paragraph")
	require.True(t, ok)
	assert.Equal(t, "Re: invoice", subject)
	assert.Equal(t, "first paragraph\n\nsecond paragraph", body)
}

func TestSplitReply_NoBlankLine(t *testing.T) {
	_, _, ok := SplitReply("just one line")
	assert.False(t, ok)
}
