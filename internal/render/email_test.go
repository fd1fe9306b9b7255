package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crlf = "\r\n"

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, crlf) + crlf)
}

func TestParse_PlainText(t *testing.T) {
	raw := rawMessage(
		"From: Alice Sender <alice@example.com>",
		"To: bob@example.com",
		"Subject: Weekly report",
		"Date: Tue, 12 Aug 2025 10:00:00 +0000",
		"Message-Id: <abc123@example.com>",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello Bob,",
		"here is the report.",
	)

	email, err := NewRenderer().Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Weekly report", email.Subject)
	assert.Equal(t, "Alice Sender", email.From.Name)
	assert.Equal(t, "alice@example.com", email.From.Address)
	assert.Equal(t, "abc123@example.com", email.MessageID)
	assert.Equal(t, time.Date(2025, 8, 12, 10, 0, 0, 0, time.UTC), email.Date.UTC())
	assert.Equal(t, "Hello Bob,\nhere is the report.\n",
		strings.ReplaceAll(email.Text, "\r\n", "\n"))
	assert.Empty(t, email.HTML)
	assert.Empty(t, email.Attachments)
}

func TestParse_MultipartAlternative(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"Subject: Both parts",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain version",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>html version</p></body></html>",
		"--BOUNDARY--",
	)

	email, err := NewRenderer().Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "plain version", email.Text)
	assert.Equal(t, "html version", email.HTML)
}

func TestParse_FirstPartWins(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"Subject: Two plain parts",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"first part",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"second part",
		"--BOUNDARY--",
	)

	email, err := NewRenderer().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "first part", email.Text)
}

func TestParse_Attachment(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"Subject: With attachment",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"see attached",
		"--BOUNDARY",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="report.pdf"`,
		"",
		"%PDF-1.4 fake",
		"--BOUNDARY--",
	)

	email, err := NewRenderer().Parse(raw)
	require.NoError(t, err)

	require.Len(t, email.Attachments, 1)
	att := email.Attachments[0]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, "%PDF-1.4 fake", string(att.Data))
}

func TestParse_InlineImagePart(t *testing.T) {
	// No Content-Disposition: the part arrives as an inline header and
	// must still be retained as a named attachment.
	raw := rawMessage(
		"From: alice@example.com",
		"Subject: inline image",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"see the embedded image",
		"--BOUNDARY",
		`Content-Type: image/png; name="inline.png"`,
		"",
		"pngbytes",
		"--BOUNDARY--",
	)

	email, err := NewRenderer().Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "see the embedded image", email.Text)
	require.Len(t, email.Attachments, 1)
	att := email.Attachments[0]
	assert.Equal(t, "inline.png", att.Filename)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, "pngbytes", string(att.Data))
}

func TestParse_Malformed(t *testing.T) {
	_, err := NewRenderer().Parse([]byte(" this is not a mail header\r\n\r\nbody"))
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.NotEmpty(t, parseErr.Raw)
}

func TestRender_Layout(t *testing.T) {
	email := &Email{
		Subject:   "Weekly report",
		From:      Address{Name: "Alice Sender", Address: "alice@example.com"},
		Date:      time.Date(2025, 8, 12, 10, 0, 0, 0, time.UTC),
		MessageID: "abc123@example.com",
		Text:      "Hello Bob, here is the weekly report body.",
	}

	text, attachments := email.Render()
	assert.Empty(t, attachments)
	assert.Equal(t,
		"Subject: Weekly report\n"+
			"From: Alice Sender alice@example.com\n"+
			"Date: Tue, 12 Aug 2025 10:00:00 +0000\n"+
			"ID: abc123@example.com\n"+
			"\n"+
			"Hello Bob, here is the weekly report body.",
		text)
}

func TestRender_ShortTextFallsBackToHTML(t *testing.T) {
	email := &Email{
		Subject: "s",
		Text:    "See HTML.",
		HTML:    "the full html-derived body of the message",
	}

	text, _ := email.Render()
	assert.Contains(t, text, "the full html-derived body of the message")
	assert.NotContains(t, text, "See HTML.")
}

func TestRender_AttachmentList(t *testing.T) {
	email := &Email{
		Subject: "s",
		Text:    "a body long enough to not fall back",
		Attachments: []Attachment{
			{Filename: "a.png", ContentType: "image/png", Data: make([]byte, 10)},
			{Filename: "b.pdf", ContentType: "application/pdf", Data: make([]byte, 3)},
		},
	}

	text, attachments := email.Render()
	assert.Len(t, attachments, 2)
	assert.Contains(t, text, "Additional Parts:\n- a.png (image/png, size 10)\n- b.pdf (application/pdf, size 3)\n")
}
