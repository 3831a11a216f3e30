// Package auth validates bearer session tokens issued by the external
// SSO service and maps them to chat identities.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-service/internal/models"
)

// SessionClaims is the claim set the SSO embeds in its session tokens.
// The subject is the identity id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	AvatarColor string  `json:"avatar_color"`
	Role        string  `json:"role"`
	ExternalRef *string `json:"external_ref,omitempty"`
}

// RevocationChecker reports whether an identity has been revoked since
// its token was issued.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, identityID string) (bool, error)
}

// Verifier validates session tokens. Safe for concurrent use; Verify has
// no side effects.
type Verifier struct {
	secret  []byte
	revoked RevocationChecker
}

// NewVerifier builds a verifier around the SSO's shared signing secret.
// A nil checker means no account is ever considered revoked.
func NewVerifier(secret []byte, revoked RevocationChecker) *Verifier {
	return &Verifier{secret: secret, revoked: revoked}
}

// Verify validates a bearer token and returns the identity it carries.
// Failures are ErrInvalidToken or ErrRevoked.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.Identity, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if v.revoked != nil {
		revoked, err := v.revoked.IsRevoked(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	role := models.Role(claims.Role)
	switch role {
	case models.RoleMember, models.RoleAdmin, models.RoleBot:
	default:
		role = models.RoleMember
	}

	return &models.Identity{
		ID:          claims.Subject,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		AvatarColor: claims.AvatarColor,
		Role:        role,
		ExternalRef: claims.ExternalRef,
	}, nil
}

// SignToken mints a session token for an identity. The SSO service is
// the production issuer; this exists for tests and local development.
func SignToken(secret []byte, id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		AvatarColor: id.AvatarColor,
		Role:        string(id.Role),
		ExternalRef: id.ExternalRef,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
