package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

// JWTManager issues and validates admin bearer tokens.
type JWTManager struct {
	config *config.APIConfig
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.APIConfig) *JWTManager {
	return &JWTManager{config: cfg}
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	IsAdmin bool `json:"is_admin"`
}

// Login verifies the admin password and returns a signed token.
func (m *JWTManager) Login(password string) (string, error) {
	if !crypto.VerifyPassword(password, m.config.AdminPasswordHash) {
		return "", fmt.Errorf("invalid credentials")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "openedgestack",
		},
		IsAdmin: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
