package models

import "time"

// Account represents a relayed mailbox account
type Account struct {
	ID         int64     `db:"id"`
	Address    string    `db:"address"`         // Email address, unique
	Secret     string    `db:"secret"`          // Plain password or token:/code: form
	ServerURI  string    `db:"server_uri"`      // e.g. imaps://imap.gmail.com:993
	SMTPURI    string    `db:"smtp_server_uri"` // Optional outbound server, empty if replies disabled
	ChatID     int64     `db:"chat_id"`         // Destination Telegram chat
	ThreadID   int       `db:"thread_id"`       // Telegram topic (message_thread_id), 0 = none
	InboxNum   int       `db:"inbox_num"`       // Last delivered message index, -1 = none
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// CacheKey is the full mailbox connection tuple. Any change to the
// credentials or server URI produces a different key, so stale cached
// connections naturally miss.
func (a *Account) CacheKey() string {
	return a.Address + "|" + a.Secret + "|" + a.ServerURI
}
