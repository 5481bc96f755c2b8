package authsvc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/otpflow"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	// StatusPending is a registered account whose email is not yet verified.
	StatusPending AccountStatus = "pending"
	// StatusActive accounts may sign in.
	StatusActive AccountStatus = "active"
)

// Account is one directory entry. PasswordHash is an Argon2id PHC string.
type Account struct {
	Email        string        `db:"email"`
	PasswordHash string        `db:"password_hash"`
	Role         otpflow.Role  `db:"role"`
	Status       AccountStatus `db:"status"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// Directory stores accounts keyed by normalized email.
type Directory interface {
	Find(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, acct *Account) error
	Update(ctx context.Context, acct *Account) error
}

// NormalizeEmail is the directory key for email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryDirectory is a Directory held in process memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string]Account)}
}

func (d *MemoryDirectory) Find(ctx context.Context, email string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.accounts[NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acct, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, acct *Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := NormalizeEmail(acct.Email)
	if _, ok := d.accounts[key]; ok {
		return ErrAccountExists
	}
	now := time.Now()
	stored := *acct
	stored.Email = key
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.accounts[key] = stored
	return nil
}

func (d *MemoryDirectory) Update(ctx context.Context, acct *Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := NormalizeEmail(acct.Email)
	prev, ok := d.accounts[key]
	if !ok {
		return ErrAccountNotFound
	}
	stored := *acct
	stored.Email = key
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now()
	d.accounts[key] = stored
	return nil
}
