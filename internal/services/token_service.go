package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// TokenTTL is the fixed lifetime of an issued token. There is no refresh.
const TokenTTL = time.Hour

// Identity is what a verified token asserts.
type Identity struct {
	AccountID string
	Username  string
}

// AccountClaims are the JWT claims carried by an access token.
type AccountClaims struct {
	AccountID string `json:"id"`
	Username  string `json:"username"`
	jwt.StandardClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenIssuer creates a TokenIssuer. now may be nil, in which case
// time.Now is used.
func NewTokenIssuer(secret string, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    now,
		// Expiry is checked against the injected clock in Verify, not jwt.TimeFunc.
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}
}

// Issue creates a signed token for the account.
func (i *TokenIssuer) Issue(accountID, username string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccountClaims{
		AccountID: accountID,
		Username:  username,
		StandardClaims: jwt.StandardClaims{
			Subject:   accountID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(i.ttl).Unix(),
		},
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// Verify checks signature and expiry and returns the asserted identity.
// It fails with ErrTokenExpired or ErrTokenInvalid.
func (i *TokenIssuer) Verify(tokenString string) (*Identity, error) {
	claims := &AccountClaims{}
	token, err := i.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.AccountID == "" || claims.Username == "" || claims.ExpiresAt == 0 {
		return nil, ErrTokenInvalid
	}
	if !claims.VerifyExpiresAt(i.now().Unix(), true) {
		return nil, ErrTokenExpired
	}

	return &Identity{AccountID: claims.AccountID, Username: claims.Username}, nil
}

// IsTokenError reports whether err came from token verification.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid)
}
