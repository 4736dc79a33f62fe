package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Pair couples the access and refresh tokens minted together.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SnapshotSource supplies the authorization snapshot embedded into access
// tokens. During refresh the snapshot is re-derived from storage rather than
// copied from the expiring token, so grant changes take effect on the next
// refresh.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (roles []string, permissions []string, err error)
}

// TokenService mints and validates token pairs.
type TokenService struct {
	codec      *Codec
	snapshots  SnapshotSource
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newID      func() string
}

func NewTokenService(codec *Codec, snapshots SnapshotSource, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		codec:      codec,
		snapshots:  snapshots,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Issue mints a fresh pair for the user. The roles and permission codes are
// embedded into the access token so request-path authorization can run
// without a storage round trip.
func (s *TokenService) Issue(userID, email string, roles, permissions []string) (Pair, error) {
	if userID == "" {
		return Pair{}, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	now := s.now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	access, err := s.codec.Encode(&Claims{
		Email:       email,
		TokenType:   TokenTypeAccess,
		Roles:       dedupe(roles),
		Permissions: dedupe(permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.codec.issuer,
			Audience:  jwt.ClaimStrings{s.codec.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        s.newID(),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	refresh, err := s.codec.Encode(&Claims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.codec.issuer,
			Audience:  jwt.ClaimStrings{s.codec.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        s.newID(),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess verifies an access token end to end, including the type
// claim. A refresh token presented here fails with ErrTokenType.
func (s *TokenService) ValidateAccess(raw string) (*Claims, error) {
	claims, err := s.codec.DecodeAndVerify(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrTokenType
	}
	return claims, nil
}

// Refresh exchanges an expired (or still valid) access token plus a valid
// refresh token for a fresh pair. Both tokens must verify, carry the right
// type and agree on the subject.
func (s *TokenService) Refresh(ctx context.Context, accessRaw, refreshRaw string) (Pair, error) {
	refreshClaims, err := s.codec.DecodeAndVerify(refreshRaw)
	if err != nil {
		return Pair{}, err
	}
	if refreshClaims.TokenType != TokenTypeRefresh {
		return Pair{}, ErrTokenType
	}

	accessClaims, err := s.codec.DecodeAllowExpired(accessRaw)
	if err != nil {
		return Pair{}, err
	}
	if accessClaims.TokenType != TokenTypeAccess {
		return Pair{}, ErrTokenType
	}
	if accessClaims.Subject == "" || accessClaims.Subject != refreshClaims.Subject {
		return Pair{}, ErrTokenSubject
	}

	roles, permissions, err := s.snapshots.Snapshot(ctx, refreshClaims.Subject)
	if err != nil {
		return Pair{}, fmt.Errorf("refresh snapshot: %w", err)
	}
	return s.Issue(refreshClaims.Subject, accessClaims.Email, roles, permissions)
}

// dedupe trims and removes duplicates preserving first-seen order. Values are
// compared verbatim; role names and permission codes are case sensitive.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
