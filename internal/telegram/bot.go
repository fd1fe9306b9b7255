package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/marovskiy/mailgram/internal/config"
	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/internal/database"
	"github.com/marovskiy/mailgram/internal/mailbox"
)

// Bot represents the Telegram bot
type Bot struct {
	bot     *bot.Bot
	db      *database.DB
	secrets *credential.Store
	mailbox mailbox.Options
	sender  *Sender
	config  *config.Config
	logger  *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config  *config.Config
	DB      *database.DB
	Secrets *credential.Store
	Mailbox mailbox.Options
	Logger  *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:      deps.DB,
		secrets: deps.Secrets,
		mailbox: deps.Mailbox,
		config:  deps.Config,
		logger:  deps.Logger.With("component", "telegram_bot"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.sender = NewSender(tgBot, deps.Logger)
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/add_email", bot.MatchTypePrefix, b.handleAddEmail)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/list_email", bot.MatchTypePrefix, b.handleListEmail)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/del_email", bot.MatchTypePrefix, b.handleDelEmail)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
}

// Sender returns the outbound delivery layer backed by this bot
func (b *Bot) Sender() *Sender {
	return b.sender
}

// Start starts the bot update loop
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// defaultHandler routes replies to the mail-reply flow
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.ReplyToMessage != nil {
		b.handleReply(ctx, update)
		return
	}
	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// isOwner gates account management and the reply flow to the operator
func (b *Bot) isOwner(update *models.Update) bool {
	msg := update.Message
	if msg == nil {
		return false
	}
	if msg.Chat.ID == b.config.OwnerChatID {
		return true
	}
	return msg.From != nil && msg.From.ID == b.config.OwnerChatID
}

// reply sends a plain response into the message's chat and topic
func (b *Bot) reply(ctx context.Context, msg *models.Message, text string) {
	b.sender.SendText(ctx, msg.Chat.ID, msg.MessageThreadID, text)
}
