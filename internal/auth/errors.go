package auth

import "errors"

var (
	// ErrInvalidToken covers malformed, expired, and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRevoked means the token was well formed but the account has
	// been disabled since it was issued.
	ErrRevoked = errors.New("account revoked")
)
