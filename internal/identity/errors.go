package identity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUnauthorized       = errors.New("identity: unauthorized")
	ErrInvalidToken       = errors.New("identity: invalid token")
	ErrNotFound           = errors.New("identity: not found")
	ErrConflict           = errors.New("identity: already exists")
)

// Token verification failures. Each wraps ErrInvalidToken so callers at the
// boundary can collapse them to a generic denial without losing the precise
// cause internally.
var (
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	ErrTokenIssuer    = fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
	ErrTokenAudience  = fmt.Errorf("%w: wrong audience", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenType      = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	ErrTokenSubject   = fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
)
