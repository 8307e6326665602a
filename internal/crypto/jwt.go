// Package crypto issues and verifies the join tokens clients present to the
// display hub.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// tokenIssuer is stamped on every join token.
const tokenIssuer = "posdisplay-hub"

// ErrInvalidRole is returned for tokens naming an unknown role.
var ErrInvalidRole = errors.New("invalid token role")

// TokenClaims is the join token payload.
type TokenClaims struct {
	// Role is wire.RoleOperator or wire.RoleDisplay.
	Role string `json:"role"`
	// Terminal is the POS terminal the client belongs to.
	Terminal string `json:"terminal"`
	jwt.RegisteredClaims
}

// JWTManager creates and verifies join tokens with an Ed25519 key derived
// from the hub's shared secret.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	now        func() time.Time
}

// NewJWTManager creates a manager from the shared secret.
func NewJWTManager(masterSecret string) (*JWTManager, error) {
	if strings.TrimSpace(masterSecret) == "" {
		return nil, fmt.Errorf("missing hub secret")
	}
	seed := sha256.Sum256([]byte(masterSecret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	publicKey := privateKey.Public().(ed25519.PublicKey)

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		now:        time.Now,
	}, nil
}

// CreateToken issues a token for role on terminal. A zero ttl never expires.
func (m *JWTManager) CreateToken(role, terminal string, ttl time.Duration) (string, error) {
	if role != wire.RoleOperator && role != wire.RoleDisplay {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(terminal) == "" {
		return "", fmt.Errorf("missing terminal id")
	}
	now := m.now()
	claims := TokenClaims{
		Role:     role,
		Terminal: terminal,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   terminal,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.privateKey)
}

// VerifyToken verifies and parses a join token.
func (m *JWTManager) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != wire.RoleOperator && claims.Role != wire.RoleDisplay {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	return claims, nil
}
