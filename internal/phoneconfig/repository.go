package phoneconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresRepo stores the configuration as the single row id = 1 of
// phone_configuration. List columns are jsonb.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context) (Configuration, error) {
	const q = `
SELECT retell_ai_phone_number, retell_ai_phone_label, transfer_phone_numbers,
       transfer_phone_book, transfer_request_email, updated_at
FROM phone_configuration
WHERE id = 1
`
	var (
		c             Configuration
		numbers, book []byte
	)
	err := r.db.QueryRowContext(ctx, q).Scan(
		&c.AIPhoneNumber,
		&c.AIPhoneLabel,
		&numbers,
		&book,
		&c.TransferRequestEmail,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Configuration{}, ErrNotFound
	}
	if err != nil {
		return Configuration{}, err
	}
	if err := json.Unmarshal(numbers, &c.TransferNumbers); err != nil {
		return Configuration{}, fmt.Errorf("decode transfer_phone_numbers: %w", err)
	}
	if err := json.Unmarshal(book, &c.PhoneBook); err != nil {
		return Configuration{}, fmt.Errorf("decode transfer_phone_book: %w", err)
	}
	return c, nil
}

func (r *PostgresRepo) Save(ctx context.Context, c Configuration) (Configuration, error) {
	if c.TransferNumbers == nil {
		c.TransferNumbers = []string{}
	}
	if c.PhoneBook == nil {
		c.PhoneBook = []PhoneBookEntry{}
	}
	numbers, err := json.Marshal(c.TransferNumbers)
	if err != nil {
		return Configuration{}, err
	}
	book, err := json.Marshal(c.PhoneBook)
	if err != nil {
		return Configuration{}, err
	}

	const q = `
INSERT INTO phone_configuration (
  id, retell_ai_phone_number, retell_ai_phone_label, transfer_phone_numbers,
  transfer_phone_book, transfer_request_email, updated_at
) VALUES (1, $1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  retell_ai_phone_number = EXCLUDED.retell_ai_phone_number,
  retell_ai_phone_label = EXCLUDED.retell_ai_phone_label,
  transfer_phone_numbers = EXCLUDED.transfer_phone_numbers,
  transfer_phone_book = EXCLUDED.transfer_phone_book,
  transfer_request_email = EXCLUDED.transfer_request_email,
  updated_at = EXCLUDED.updated_at
`
	if _, err := r.db.ExecContext(ctx, q,
		c.AIPhoneNumber,
		c.AIPhoneLabel,
		string(numbers),
		string(book),
		c.TransferRequestEmail,
		c.UpdatedAt,
	); err != nil {
		return Configuration{}, err
	}
	return c, nil
}
