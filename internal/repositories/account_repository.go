package repositories

import (
	"context"
	"time"

	"gatekeep/internal/models"
)

// AccountRepository defines the interface for account persistence.
// Implementations must enforce uniqueness of username and of non-nil email
// atomically and report a violation as *DuplicateKeyError.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	// FindConflicts returns every account whose username equals username or,
	// when email is non-empty, whose email equals email.
	FindConflicts(ctx context.Context, username, email string) ([]models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
