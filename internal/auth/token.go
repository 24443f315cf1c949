// Package auth turns bearer tokens into actors. Tokens are HS256 JWTs whose
// subject is the actor id and whose claims carry the role and branch.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that cannot be trusted
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload
type Claims struct {
	Role     entity.Role `json:"role"`
	BranchID string      `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// Config holds token settings
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// TokenService issues and verifies actor tokens
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service. The secret must not be empty.
func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the actor
func (s *TokenService) Issue(actor entity.Actor) (string, error) {
	if err := actor.Validate(); err != nil {
		return "", err
	}

	now := s.now()
	claims := Claims{
		Role:     actor.Role,
		BranchID: actor.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the actor it names
func (s *TokenService) Verify(tokenString string) (entity.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return entity.Actor{}, ErrInvalidToken
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return entity.Actor{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.ExpiresAt == nil {
		return entity.Actor{}, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	actor := entity.Actor{
		ID:       claims.Subject,
		Role:     claims.Role,
		BranchID: claims.BranchID,
	}
	if err := actor.Validate(); err != nil {
		return entity.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return actor, nil
}
