package database

const schema = `
CREATE TABLE IF NOT EXISTS email_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    address TEXT NOT NULL UNIQUE,
    secret TEXT NOT NULL,
    server_uri TEXT NOT NULL,
    smtp_server_uri TEXT NOT NULL DEFAULT '',
    chat_id INTEGER NOT NULL,
    thread_id INTEGER NOT NULL DEFAULT 0,
    inbox_num INTEGER NOT NULL DEFAULT -1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_address ON email_accounts(address);
CREATE INDEX IF NOT EXISTS idx_accounts_chat ON email_accounts(chat_id);
`
