package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gatekeep/internal/models"
	"gatekeep/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGORMRepo(t *testing.T) *repositories.GORMAccountRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repositories.NewGORMAccountRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func strPtr(s string) *string { return &s }

func newAccount(username string, email *string) *models.Account {
	return &models.Account{
		Username:   username,
		SecretHash: "$2a$04$hash",
		Email:      email,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		IsActive:   true,
	}
}

// repoFactories lets the same contract run against every implementation.
func repoFactories() map[string]func(t *testing.T) repositories.AccountRepository {
	return map[string]func(t *testing.T) repositories.AccountRepository{
		"gorm":   func(t *testing.T) repositories.AccountRepository { return newGORMRepo(t) },
		"memory": func(t *testing.T) repositories.AccountRepository { return repositories.NewMemoryAccountRepository() },
	}
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			ctx := context.Background()

			acc := newAccount("alice", strPtr("alice@example.com"))
			require.NoError(t, repo.Create(ctx, acc))
			assert.NotEmpty(t, acc.ID)

			byName, err := repo.GetByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, acc.ID, byName.ID)
			assert.Equal(t, "alice@example.com", *byName.Email)
			assert.Nil(t, byName.LastLogin)
			assert.True(t, byName.IsActive)

			byID, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice", byID.Username)

			_, err = repo.GetByUsername(ctx, "Alice")
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			_, err = repo.GetByID(ctx, uuid.New().String())
			assert.ErrorIs(t, err, repositories.ErrNotFound)
		})
	}
}

func TestAccountRepository_UniqueConstraints(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			ctx := context.Background()

			require.NoError(t, repo.Create(ctx, newAccount("alice", strPtr("alice@example.com"))))

			err := repo.Create(ctx, newAccount("alice", strPtr("other@example.com")))
			var dup *repositories.DuplicateKeyError
			require.True(t, errors.As(err, &dup), "expected duplicate error, got %v", err)
			assert.Equal(t, repositories.FieldUsername, dup.Field)

			err = repo.Create(ctx, newAccount("bob", strPtr("alice@example.com")))
			require.True(t, errors.As(err, &dup), "expected duplicate error, got %v", err)
			assert.Equal(t, repositories.FieldEmail, dup.Field)

			// Absent emails never collide.
			require.NoError(t, repo.Create(ctx, newAccount("carol", nil)))
			require.NoError(t, repo.Create(ctx, newAccount("dave", nil)))
		})
	}
}

func TestAccountRepository_FindConflicts(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			ctx := context.Background()

			require.NoError(t, repo.Create(ctx, newAccount("alice", strPtr("alice@example.com"))))
			require.NoError(t, repo.Create(ctx, newAccount("bob", strPtr("bob@example.com"))))
			require.NoError(t, repo.Create(ctx, newAccount("nomail", nil)))

			found, err := repo.FindConflicts(ctx, "zed", "")
			require.NoError(t, err)
			assert.Empty(t, found)

			found, err = repo.FindConflicts(ctx, "alice", "")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "alice", found[0].Username)

			found, err = repo.FindConflicts(ctx, "zed", "bob@example.com")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "bob", found[0].Username)

			found, err = repo.FindConflicts(ctx, "alice", "bob@example.com")
			require.NoError(t, err)
			assert.Len(t, found, 2)
		})
	}
}

func TestAccountRepository_UpdateLastLogin(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			ctx := context.Background()

			acc := newAccount("alice", nil)
			require.NoError(t, repo.Create(ctx, acc))

			at := acc.CreatedAt.Add(time.Minute)
			require.NoError(t, repo.UpdateLastLogin(ctx, acc.ID, at))

			got, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LastLogin)
			assert.True(t, got.LastLogin.Equal(at))
			assert.True(t, got.CreatedAt.Equal(acc.CreatedAt), "created_at must not change")

			err = repo.UpdateLastLogin(ctx, uuid.New().String(), at)
			assert.ErrorIs(t, err, repositories.ErrNotFound)
		})
	}
}

func TestMemoryAccountRepository_ConcurrentCreate(t *testing.T) {
	repo := repositories.NewMemoryAccountRepository()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, newAccount("racer", nil))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var dup *repositories.DuplicateKeyError
		assert.True(t, errors.As(err, &dup))
	}
	assert.Equal(t, 1, succeeded)
}

func TestMemoryAccountRepository_HonorsCancellation(t *testing.T) {
	repo := repositories.NewMemoryAccountRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Create(ctx, newAccount("alice", nil))
	assert.ErrorIs(t, err, context.Canceled)
}
