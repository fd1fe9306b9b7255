package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/marovskiy/mailgram/internal/database"
	"github.com/marovskiy/mailgram/internal/smtpout"
)

// forwardedHeaderRegex matches the header block of a forwarded email:
// the [address-index] tag followed by the rendered From: line, whose
// last token is the sender address.
var forwardedHeaderRegex = regexp.MustCompile(`^.*?\[(.*?)-(\d+)\]\n[\S\s]+?From: .*?(\S+)\n`)

// ParseReplyTarget extracts the relay account address and the original
// sender address from a forwarded message's text.
func ParseReplyTarget(forwarded string) (account, recipient string, ok bool) {
	m := forwardedHeaderRegex.FindStringSubmatch(forwarded)
	if m == nil {
		return "", "", false
	}
	// The sender token may arrive in RFC 5322 angle-addr form
	return m[1], strings.Trim(m[3], "<>"), true
}

// SplitReply splits reply text into subject and body on the first
// blank line.
func SplitReply(text string) (subject, body string, ok bool) {
	subject, body, ok = strings.Cut(text, "\n\n")
	return subject, body, ok
}

// handleReply sends a mail reply when the operator replies to a
// forwarded email message.
func (b *Bot) handleReply(ctx context.Context, update *models.Update) {
	if !b.isOwner(update) {
		return
	}
	msg := update.Message

	replyTo := msg.ReplyToMessage
	if replyTo == nil || replyTo.Text == "" || msg.Text == "" {
		return
	}
	// Only messages the bot itself sent carry the forwarded header
	if replyTo.From == nil || replyTo.From.ID != b.bot.ID() {
		return
	}

	address, recipient, ok := ParseReplyTarget(replyTo.Text)
	if !ok {
		return
	}

	subject, body, ok := SplitReply(msg.Text)
	if !ok {
		b.reply(ctx, msg, "Don't know the subject of email. Send the email in this form: \n\n(Your subject here)\n\n(Your body)")
		return
	}

	account, err := b.db.GetAccountByAddress(ctx, address)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("cannot find config for email %s", address))
		return
	}
	if err != nil {
		b.logger.Error("failed to look up account", "error", err)
		b.reply(ctx, msg, "Failed to look up email account")
		return
	}
	if account.SMTPURI == "" {
		b.reply(ctx, msg, fmt.Sprintf("Cannot send email from %s, no smtp server configured!", address))
		return
	}

	err = smtpout.Send(ctx, smtpout.Mail{
		ServerURI: account.SMTPURI,
		From:      account.Address,
		Secret:    account.Secret,
		To:        recipient,
		Subject:   subject,
		Body:      body,
	}, b.secrets, smtpout.Options{Timeout: b.mailbox.SocketTimeout, Logger: b.logger})
	if err != nil {
		b.logger.Error("failed to send reply mail", "email", address, "error", err)
		b.reply(ctx, msg, fmt.Sprintf("Failed to send the email: %v", err))
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("Successfully sent the email from %s to %s with subject %s", address, recipient, subject))
}
