package authsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the accounts table used by SQLDirectory.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	email         TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const uniqueViolation = "23505"

// SQLDirectory is a Directory over PostgreSQL.
type SQLDirectory struct {
	db *sqlx.DB
}

// NewSQLDirectory wraps db. The accounts table must exist; see [Schema].
func NewSQLDirectory(db *sqlx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// OpenSQLDirectory connects with the given driver and DSN and applies Schema.
func OpenSQLDirectory(ctx context.Context, driver, dsn string) (*SQLDirectory, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return NewSQLDirectory(db), nil
}

// Close releases the connection pool.
func (d *SQLDirectory) Close() error {
	return d.db.Close()
}

func (d *SQLDirectory) Find(ctx context.Context, email string) (*Account, error) {
	var acct Account
	query := `SELECT email, password_hash, role, status, created_at, updated_at FROM accounts WHERE email = $1`
	if err := d.db.GetContext(ctx, &acct, query, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &acct, nil
}

func (d *SQLDirectory) Create(ctx context.Context, acct *Account) error {
	now := time.Now().UTC()
	row := *acct
	row.Email = NormalizeEmail(acct.Email)
	row.CreatedAt = now
	row.UpdatedAt = now

	query := `
		INSERT INTO accounts (email, password_hash, role, status, created_at, updated_at)
		VALUES (:email, :password_hash, :role, :status, :created_at, :updated_at)`
	if _, err := d.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (d *SQLDirectory) Update(ctx context.Context, acct *Account) error {
	row := *acct
	row.Email = NormalizeEmail(acct.Email)
	row.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET password_hash = :password_hash, role = :role, status = :status, updated_at = :updated_at
		WHERE email = :email`
	res, err := d.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
