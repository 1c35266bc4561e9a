// ABOUTME: Session token signing and verification for the HTTP API front door
// ABOUTME: HS256 JWTs with access/refresh discriminant; refresh exchange rotates the pair

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/vellum/internal/store"
)

// Token errors
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// Token type discriminants embedded in session claims.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// SessionClaims is the claim set embedded in signed session tokens. Validity
// is determined entirely by the signature and embedded expiry; there is no
// persisted record.
type SessionClaims struct {
	Username  string   `json:"username,omitempty"`
	Email     string   `json:"email,omitempty"`
	Admin     bool     `json:"is_admin,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	TokenType string   `json:"type"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens using HS256.
type Signer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSigner creates a session token signer. The secret must be at least
// MinSecretLength bytes.
func NewSigner(secret []byte, accessTTL, refreshTTL time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Signer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueAccess signs a short-lived access token for a user. Scopes default to
// read+write when nil.
func (s *Signer) IssueAccess(u *store.User, scopes []store.Scope) (string, error) {
	if scopes == nil {
		scopes = []store.Scope{store.ScopeRead, store.ScopeWrite}
	}
	scopeStrings := make([]string, len(scopes))
	for i, sc := range scopes {
		scopeStrings[i] = string(sc)
	}

	now := time.Now()
	claims := SessionClaims{
		Username:  u.Username,
		Email:     u.Email,
		Admin:     u.Admin,
		Scopes:    scopeStrings,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// IssueRefresh signs a longer-lived refresh token carrying only the subject.
func (s *Signer) IssueRefresh(userID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// IssuePair signs a fresh access+refresh pair for a user.
func (s *Signer) IssuePair(u *store.User) (access, refresh string, err error) {
	access, err = s.IssueAccess(u, nil)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.IssueRefresh(u.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// VerifyAccess validates a bearer session token. Refresh tokens presented as
// bearer credentials are rejected with ErrWrongTokenType.
func (s *Signer) VerifyAccess(tokenString string) (*SessionClaims, error) {
	return s.verify(tokenString, TokenTypeAccess)
}

// VerifyRefresh validates a refresh token during the refresh exchange.
func (s *Signer) VerifyRefresh(tokenString string) (*SessionClaims, error) {
	return s.verify(tokenString, TokenTypeRefresh)
}

func (s *Signer) verify(tokenString, wantType string) (*SessionClaims, error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, wantType)
	}

	return &claims, nil
}
