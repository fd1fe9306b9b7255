package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marovskiy/mailgram/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrBadField is returned when updating a column outside the whitelist
var ErrBadField = errors.New("field not updatable")

// Columns updatable through UpdateAccountField. The polling engine
// advances inbox_num, the credential layer rewrites exchanged secrets.
var updatableFields = map[string]bool{
	"secret":    true,
	"inbox_num": true,
}

// CreateAccount creates a new account record
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO email_accounts (address, secret, server_uri, smtp_server_uri, chat_id, thread_id, inbox_num, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.Address,
		account.Secret,
		account.ServerURI,
		account.SMTPURI,
		account.ChatID,
		account.ThreadID,
		account.InboxNum,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// UpsertAccount inserts the account, or replaces the whole record when
// the address is already configured.
func (db *DB) UpsertAccount(ctx context.Context, account *models.Account) error {
	existing, err := db.GetAccountByAddress(ctx, account.Address)
	if errors.Is(err, ErrNotFound) {
		return db.CreateAccount(ctx, account)
	}
	if err != nil {
		return err
	}

	query := `
		UPDATE email_accounts
		SET secret = ?, server_uri = ?, smtp_server_uri = ?, chat_id = ?, thread_id = ?, inbox_num = ?, updated_at = ?
		WHERE address = ?
	`
	_, err = db.ExecContext(ctx, query,
		account.Secret,
		account.ServerURI,
		account.SMTPURI,
		account.ChatID,
		account.ThreadID,
		account.InboxNum,
		time.Now(),
		account.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	account.ID = existing.ID
	return nil
}

// GetAccountByAddress returns an account by email address
func (db *DB) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	var account models.Account
	query := `SELECT * FROM email_accounts WHERE address = ?`
	err := db.GetContext(ctx, &account, query, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAllAccounts returns all configured accounts
func (db *DB) GetAllAccounts(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM email_accounts ORDER BY created_at`
	err := db.SelectContext(ctx, &accounts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountField updates a single whitelisted column by address
func (db *DB) UpdateAccountField(ctx context.Context, address, field string, value any) error {
	if !updatableFields[field] {
		return fmt.Errorf("%w: %s", ErrBadField, field)
	}
	query := fmt.Sprintf(`UPDATE email_accounts SET %s = ?, updated_at = ? WHERE address = ?`, field)
	res, err := db.ExecContext(ctx, query, value, time.Now(), address)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount deletes an account by internal id
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	query := `DELETE FROM email_accounts WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
