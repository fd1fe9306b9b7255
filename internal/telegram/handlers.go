package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/internal/database"
	"github.com/marovskiy/mailgram/internal/mailbox"
	appmodels "github.com/marovskiy/mailgram/pkg/models"
)

// handleHelp handles /help and /start
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.isOwner(update) {
		return
	}

	text := `Email setup:
/add_email john.doe@example.com secret protocol://server[:port] [smtp_protocol://smtp_server[:port]]
Examples:
    /add_email john.doe@hotmail.com P@ssw0rd pop3s://outlook.office365.com smtp+starttls://smtp-mail.outlook.com
    /add_email john.doe@hotmail.com token:ms:XX_refresh_token_XXX imaps://outlook.office365.com smtp+starttls://smtp-mail.outlook.com
    /add_email john.doe@hotmail.com code:ms:XX_authorization_code_XXX imaps://outlook.office365.com smtp+starttls://smtp-mail.outlook.com
    /add_email john.doe@gmail.com password imaps://imap.gmail.com:993 smtps://smtp.gmail.com
`
	if authURL := msAuthURL(); authURL != "" {
		text += "\n    use this URL to get an auth code: " + authURL + "\n"
	}
	text += `
/list_email
/del_email john.doe@example.com
/help get help

Reply to a forwarded email in Telegram to send a mail reply.`

	b.reply(ctx, update.Message, text)
}

// msAuthURL builds the authorization URL for the ms provider
func msAuthURL() string {
	p, err := credential.Lookup("ms")
	if err != nil || p.AuthURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("scope", "https://outlook.office.com/IMAP.AccessAsUser.All https://outlook.office.com/POP.AccessAsUser.All https://outlook.office.com/SMTP.Send offline_access")
	return p.AuthURL + "?" + q.Encode()
}

// handleAddEmail handles /add_email
// Usage: /add_email address secret server_uri [smtp_uri]
func (b *Bot) handleAddEmail(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.isOwner(update) {
		return
	}
	msg := update.Message

	args := strings.Fields(msg.Text)[1:]
	if len(args) < 3 || len(args) > 4 {
		b.reply(ctx, msg, "Invalid command! Usage: /add_email address secret protocol://server[:port] [smtp://server[:port]]")
		return
	}
	address, secret, serverURI := args[0], args[1], args[2]
	smtpURI := ""
	if len(args) == 4 {
		smtpURI = args[3]
	}

	if !strings.HasPrefix(serverURI, "imap") && !strings.HasPrefix(serverURI, "pop3") {
		b.reply(ctx, msg, fmt.Sprintf("invalid server: %s", serverURI))
		return
	}
	if smtpURI != "" && !strings.HasPrefix(smtpURI, "smtp") {
		b.reply(ctx, msg, fmt.Sprintf("invalid smtp server: %s", smtpURI))
		return
	}

	threadID := 0
	if msg.IsTopicMessage && msg.MessageThreadID != 0 {
		threadID = msg.MessageThreadID
	}

	account := &appmodels.Account{
		Address:   address,
		Secret:    secret,
		ServerURI: serverURI,
		SMTPURI:   smtpURI,
		ChatID:    msg.Chat.ID,
		ThreadID:  threadID,
		InboxNum:  -1,
	}

	b.logger.Info("received add_email command", "email", address)

	// A one-time authorization code must be exchanged and replaced
	// before anything else touches it.
	newSecret, err := b.secrets.ExchangeCode(ctx, secret)
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Code exchange failed: %v", err))
		return
	}
	if newSecret != "" {
		b.reply(ctx, msg, fmt.Sprintf("Exchanged refresh token secret for email %s, rewriting secret~", address))
		account.Secret = newSecret
	}

	// Probe the mailbox: validates the credentials and pins the
	// high-water mark to the current count, so only new mail relays.
	client, err := mailbox.Dial(ctx, account, b.secrets, b.mailbox)
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Cannot connect to %s: %v", serverURI, err))
		return
	}
	count, err := client.Count(ctx)
	client.Close()
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Cannot query inbox of %s: %v", address, err))
		return
	}
	account.InboxNum = count

	existing, err := b.db.GetAccountByAddress(ctx, address)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		b.logger.Error("failed to check existing account", "error", err)
		b.reply(ctx, msg, "Failed to check existing account")
		return
	}
	if existing != nil {
		b.reply(ctx, msg, fmt.Sprintf("Email %s is already configured! Overriding...", address))
	}
	if err := b.db.UpsertAccount(ctx, account); err != nil {
		b.logger.Error("failed to save account", "error", err)
		b.reply(ctx, msg, "Failed to save email account")
		return
	}

	b.reply(ctx, msg, "Configure email success!")
}

// handleListEmail handles /list_email
func (b *Bot) handleListEmail(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.isOwner(update) {
		return
	}
	msg := update.Message

	accounts, err := b.db.GetAllAccounts(ctx)
	if err != nil {
		b.logger.Error("failed to list accounts", "error", err)
		b.reply(ctx, msg, "Failed to list email accounts")
		return
	}

	text := "Email Account List:\n"
	for _, account := range accounts {
		text += fmt.Sprintf("    Email: %s, Secret: %s, Server: %s, SMTP Server: %s, InboxNum: %d\n",
			account.Address,
			maskSecret(account.Secret),
			account.ServerURI,
			account.SMTPURI,
			account.InboxNum,
		)
	}
	b.reply(ctx, msg, text)
}

func maskSecret(secret string) string {
	return strings.Repeat("*", len(secret))
}

// handleDelEmail handles /del_email
func (b *Bot) handleDelEmail(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.isOwner(update) {
		return
	}
	msg := update.Message

	args := strings.Fields(msg.Text)[1:]
	if len(args) != 1 {
		b.reply(ctx, msg, "Invalid command! Usage: /del_email address")
		return
	}
	address := args[0]

	account, err := b.db.GetAccountByAddress(ctx, address)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("cannot find email account: %s", address))
		return
	}
	if err != nil {
		b.logger.Error("failed to look up account", "error", err)
		b.reply(ctx, msg, "Failed to look up email account")
		return
	}

	if err := b.db.DeleteAccount(ctx, account.ID); err != nil {
		b.logger.Error("failed to delete account", "error", err)
		b.reply(ctx, msg, "Failed to delete email account")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Successfully deleted email account %s", address))
}
