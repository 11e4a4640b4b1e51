// Package session turns bearer tokens issued by the platform's auth
// service into the session state the access gate reads.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const stateKey contextKey = "session"

// Claims are the custom claims carried by access tokens.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Provider validates HS256 access tokens and implements port.SessionProvider
// over the state a middleware stored in the request context.
type Provider struct {
	secret []byte
}

// NewProvider creates a session provider for the given signing secret.
func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

// Parse validates an access token and returns its session state.
func (p *Provider) Parse(tokenString string) (*domain.SessionState, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, &domain.ErrValidation{Field: "token", Message: err.Error()}
	}
	if !token.Valid {
		return nil, &domain.ErrValidation{Field: "token", Message: "invalid token"}
	}
	if claims.Type != "" && claims.Type != "access" {
		return nil, &domain.ErrValidation{Field: "token", Message: "not an access token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrValidation{Field: "token", Message: "missing subject"}
	}

	return &domain.SessionState{
		Authenticated: true,
		Subject:       claims.Subject,
		Role:          claims.Role,
	}, nil
}

// Issue signs an access token. Used by dev tooling and tests.
func (p *Provider) Issue(subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// GetSessionState returns the session stored in ctx, or an anonymous one.
func (p *Provider) GetSessionState(ctx context.Context) (*domain.SessionState, error) {
	if st, ok := ctx.Value(stateKey).(*domain.SessionState); ok && st != nil {
		return st, nil
	}
	return &domain.SessionState{}, nil
}

// WithState stores a session state in ctx.
func WithState(ctx context.Context, st *domain.SessionState) context.Context {
	return context.WithValue(ctx, stateKey, st)
}
