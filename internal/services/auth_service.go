package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gatekeep/internal/models"
	"gatekeep/internal/repositories"
	"gatekeep/internal/validation"

	"github.com/sirupsen/logrus"
)

// Routing keys of the account events published to the broker.
const (
	EventsExchange       = "accounts"
	RoutingKeyRegistered = "account.registered"
	RoutingKeyLoggedIn   = "account.logged_in"
)

// EventPublisher delivers account events. Publishing is best-effort.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// AccountEvent is the payload of a published account event. It never
// carries secrets.
type AccountEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"accountId"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurredAt"`
}

// RegisterInput holds the raw, untrusted registration fields.
type RegisterInput struct {
	Username       string
	Password       string
	Email          string
	RegistrationIP string
}

// LoginResult is returned by a successful authentication.
type LoginResult struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthService runs the registration and authentication pipelines.
type AuthService struct {
	accounts  repositories.AccountRepository
	hasher    PasswordHasher
	tokens    *TokenIssuer
	events    EventPublisher
	log       logrus.FieldLogger
	now       func() time.Time
	dummyHash string
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithLogger sets the logger used for pipeline outcomes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *AuthService) { s.log = l }
}

// WithEventPublisher enables account event publishing.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *AuthService) { s.events = p }
}

// NewAuthService creates a new AuthService. It hashes one throwaway password
// up front so that logins for unknown usernames cost the same as real ones.
func NewAuthService(accounts repositories.AccountRepository, hasher PasswordHasher, tokens *TokenIssuer, opts ...Option) (*AuthService, error) {
	s := &AuthService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to seed dummy hash: %w", err)
	}
	dummy, err := hasher.Hash(context.Background(), hex.EncodeToString(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to compute dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register validates input, enforces uniqueness, hashes the password and
// persists a new account. The hash never leaves this method.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.PublicAccount, error) {
	logCtx := s.log.WithFields(logrus.Fields{"operation": "register", "username": in.Username})

	if res, failed := validation.FirstFailure(
		validation.ValidateUsername(in.Username),
		validation.ValidatePassword(in.Password),
		validation.ValidateEmail(in.Email),
	); failed {
		logCtx.WithFields(logrus.Fields{"field": res.Field, "reason": res.Reason}).Info("Registration rejected by validation")
		return nil, newValidationError(res)
	}

	username := strings.ToLower(in.Username)
	email := strings.ToLower(in.Email)

	conflicts, err := s.accounts.FindConflicts(ctx, username, email)
	if err != nil {
		logCtx.WithError(err).Error("Failed to check for existing accounts")
		return nil, storeError("find conflicts", err)
	}
	if err := conflictError(conflicts, username, email); err != nil {
		logCtx.WithError(err).Info("Registration rejected as duplicate")
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, err
	}

	account := &models.Account{
		Username:   username,
		SecretHash: hash,
		CreatedAt:  s.now().UTC(),
		IsActive:   true,
	}
	if email != "" {
		account.Email = &email
	}
	if in.RegistrationIP != "" {
		ip := in.RegistrationIP
		account.RegistrationIP = &ip
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// A concurrent registration can slip past FindConflicts; the store's
		// unique constraint has the final word.
		var dup *repositories.DuplicateKeyError
		if errors.As(err, &dup) {
			logCtx.WithField("field", dup.Field).Info("Registration lost a race to a duplicate")
			return nil, duplicateError(dup.Field)
		}
		logCtx.WithError(err).Error("Failed to persist account")
		return nil, storeError("create account", err)
	}

	logCtx.WithField("account_id", account.ID).Info("Account registered")
	s.publish(logCtx, RoutingKeyRegistered, account)
	return account.Public(), nil
}

// Login verifies credentials and issues a token. Unknown usernames and wrong
// passwords produce the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrMissingFields
	}
	logCtx := s.log.WithFields(logrus.Fields{"operation": "login", "username": username})

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_, _ = s.hasher.Compare(ctx, s.dummyHash, password)
			logCtx.Info("Login failed")
			return nil, ErrInvalidCredentials
		}
		logCtx.WithError(err).Error("Failed to look up account")
		return nil, storeError("get account", err)
	}

	ok, err := s.hasher.Compare(ctx, account.SecretHash, password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to verify password")
		return nil, err
	}
	if !ok {
		logCtx.Info("Login failed")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		logCtx.WithError(err).Warn("Failed to record last login")
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to issue token")
		return nil, err
	}

	logCtx.WithField("account_id", account.ID).Info("Account logged in")
	s.publish(logCtx, RoutingKeyLoggedIn, account)
	return &LoginResult{Token: token, ID: account.ID, Username: account.Username}, nil
}

// Profile returns the public profile of an authenticated account.
func (s *AuthService) Profile(ctx context.Context, accountID string) (*models.Profile, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeError("get account by id", err)
	}
	return account.Profile(), nil
}

// VerifyToken exposes the issuer to the transport layer.
func (s *AuthService) VerifyToken(token string) (*Identity, error) {
	return s.tokens.Verify(token)
}

func (s *AuthService) publish(logCtx logrus.FieldLogger, routingKey string, account *models.Account) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(AccountEvent{
		Type:       routingKey,
		AccountID:  account.ID,
		Username:   account.Username,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		logCtx.WithError(err).Warn("Failed to marshal account event")
		return
	}
	if err := s.events.Publish(EventsExchange, routingKey, body); err != nil {
		logCtx.WithError(err).WithField("routing_key", routingKey).Warn("Failed to publish account event")
	}
}

// conflictError picks the error for existing accounts. Username wins over
// email when both collide.
func conflictError(conflicts []models.Account, username, email string) error {
	for _, a := range conflicts {
		if a.Username == username {
			return ErrDuplicateUsername
		}
	}
	if email == "" {
		return nil
	}
	for _, a := range conflicts {
		if a.Email != nil && *a.Email == email {
			return ErrDuplicateEmail
		}
	}
	return nil
}

func duplicateError(field string) error {
	if field == repositories.FieldEmail {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
