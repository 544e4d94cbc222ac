package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost costs well over 50ms per hash on current hardware.
// Raise it as hardware gets faster.
const DefaultBcryptCost = 12

// ErrPasswordTooLong is returned when the password exceeds bcrypt's 72-byte input.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher turns a password into a salted one-way hash and checks
// candidates against it.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	// Compare returns (true, nil) on match and (false, nil) on mismatch.
	Compare(ctx context.Context, hash, password string) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. Costs outside bcrypt's range fall
// back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost reports the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash runs bcrypt off the caller's goroutine so a cancelled context returns
// immediately; the abandoned computation finishes in the background.
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	type result struct {
		hash []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		done <- result{hash, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("failed to hash password: %w", r.err)
		}
		return string(r.hash), nil
	}
}

// Compare checks password against a bcrypt hash.
func (h *BcryptHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-done:
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
}

// HashObserver receives the latency of every hash ("hash") and compare ("compare") call.
type HashObserver interface {
	ObserveHash(op string, d time.Duration)
}

type timedHasher struct {
	inner    PasswordHasher
	observer HashObserver
}

// NewTimedHasher reports the latency of inner's calls to observer.
func NewTimedHasher(inner PasswordHasher, observer HashObserver) PasswordHasher {
	return &timedHasher{inner: inner, observer: observer}
}

func (h *timedHasher) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	defer func() { h.observer.ObserveHash("hash", time.Since(start)) }()
	return h.inner.Hash(ctx, password)
}

func (h *timedHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	start := time.Now()
	defer func() { h.observer.ObserveHash("compare", time.Since(start)) }()
	return h.inner.Compare(ctx, hash, password)
}
