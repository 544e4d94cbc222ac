package repositories

import (
	"context"
	"sync"
	"time"

	"gatekeep/internal/models"

	"github.com/google/uuid"
)

// MemoryAccountRepository is an in-memory implementation of AccountRepository.
// The uniqueness check and the insert happen under one lock.
type MemoryAccountRepository struct {
	accounts map[string]models.Account
	mu       sync.RWMutex
}

// NewMemoryAccountRepository creates a new instance of MemoryAccountRepository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[string]models.Account),
	}
}

// Create adds a new account.
func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Username == account.Username {
			return &DuplicateKeyError{Field: FieldUsername}
		}
	}
	if account.Email != nil {
		for _, a := range r.accounts {
			if a.Email != nil && *a.Email == *account.Email {
				return &DuplicateKeyError{Field: FieldEmail}
			}
		}
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	r.accounts[account.ID] = copyAccount(*account)
	return nil
}

// FindConflicts returns accounts colliding on username or email.
func (r *MemoryAccountRepository) FindConflicts(ctx context.Context, username, email string) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Account
	for _, a := range r.accounts {
		if a.Username == username || (email != "" && a.Email != nil && *a.Email == email) {
			out = append(out, copyAccount(a))
		}
	}
	return out, nil
}

// GetByUsername returns an account by its stored username.
func (r *MemoryAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.Username == username {
			found := copyAccount(a)
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// GetByID returns an account by its ID.
func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := copyAccount(a)
	return &found, nil
}

// UpdateLastLogin records a login time.
func (r *MemoryAccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.LastLogin = &at
	r.accounts[id] = a
	return nil
}

// copyAccount detaches pointer fields so callers cannot mutate stored state.
func copyAccount(a models.Account) models.Account {
	if a.Email != nil {
		e := *a.Email
		a.Email = &e
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		a.LastLogin = &t
	}
	if a.RegistrationIP != nil {
		ip := *a.RegistrationIP
		a.RegistrationIP = &ip
	}
	return a
}
