package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	charset "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	// Register GBK so go-message can decode mail from QQ/163 mailboxes;
	// otherwise parsing fails with `unhandled charset "gbk"`.
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
}

// shortBodyThreshold: a plain-text part below this length is probably
// a stub ("see HTML version") rather than a real message body.
const shortBodyThreshold = 20

// Address is a parsed sender
type Address struct {
	Name    string
	Address string
}

// Attachment is a retained non-body message part
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Email is the structured form of one fetched message. Transient:
// rendered and discarded, never persisted.
type Email struct {
	Subject     string
	From        Address
	Date        time.Time
	MessageID   string
	Text        string // first non-HTML text part
	HTML        string // first HTML part, converted to readable text
	Attachments []Attachment
}

// ParseError reports an unparseable raw message and carries the
// original input for diagnostics.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Renderer parses raw messages and renders them for display
type Renderer struct {
	html *HTMLParser
}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{html: NewHTMLParser()}
}

// Parse parses raw message octets into a structured Email
func (r *Renderer) Parse(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	email := &Email{}
	h := mr.Header
	email.Subject, _ = h.Subject()
	email.Date, _ = h.Date()
	email.MessageID, _ = h.MessageID()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.From = Address{Name: from[0].Name, Address: from[0].Address}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever decoded cleanly before the broken part
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, params, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html") && email.HTML == "":
				email.HTML = r.htmlToText(string(body))
			case strings.HasPrefix(ct, "text/") && email.Text == "":
				email.Text = string(body)
			default:
				// An inline header has no disposition filename; the
				// content-type name parameter is the usual substitute.
				email.Attachments = append(email.Attachments, Attachment{
					Filename:    params["name"],
					ContentType: ct,
					Data:        body,
				})
			}
		case *mail.AttachmentHeader:
			ct, _, _ := ph.ContentType()
			filename, _ := ph.Filename()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			email.Attachments = append(email.Attachments, Attachment{
				Filename:    filename,
				ContentType: ct,
				Data:        body,
			})
		}
	}

	return email, nil
}

// htmlToText converts an HTML body to readable text, falling back to
// the raw HTML when conversion fails.
func (r *Renderer) htmlToText(html string) string {
	text, err := r.html.Parse(html)
	if err != nil || text == "" {
		return html
	}
	return text
}

// Render produces the displayable text block and the attachment list
func (e *Email) Render() (string, []Attachment) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Subject: %s\n", e.Subject))
	sb.WriteString(fmt.Sprintf("From: %s %s\n", e.From.Name, e.From.Address))
	sb.WriteString(fmt.Sprintf("Date: %s\n", e.dateString()))
	sb.WriteString(fmt.Sprintf("ID: %s\n", e.MessageID))
	sb.WriteString("\n")

	// A missing or implausibly short text part means the HTML part is
	// the real body.
	body := e.Text
	if len(body) < shortBodyThreshold && e.HTML != "" {
		body = e.HTML
	}
	sb.WriteString(body)

	if len(e.Attachments) > 0 {
		sb.WriteString("\n\nAdditional Parts:\n")
		for _, part := range e.Attachments {
			sb.WriteString(fmt.Sprintf("- %s (%s, size %d)\n", part.Filename, part.ContentType, len(part.Data)))
		}
	}

	return sb.String(), e.Attachments
}

func (e *Email) dateString() string {
	if e.Date.IsZero() {
		return ""
	}
	return e.Date.Format(time.RFC1123Z)
}
