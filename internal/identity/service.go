package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rexcards.org/internal/obs"
)

// Login is the result of a successful authentication or refresh.
type Login struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name,omitempty"`
}

// Service is the authentication facade. Transport layers call it and map its
// sentinel errors to status codes; internally precise failures are collapsed
// to generic denials before they reach this boundary's callers.
type Service struct {
	hasher *Hasher
	tokens *TokenService
	engine *Engine
	users  UserStore
}

func NewService(hasher *Hasher, tokens *TokenService, engine *Engine, users UserStore) *Service {
	return &Service{hasher: hasher, tokens: tokens, engine: engine, users: users}
}

// PasswordLogin verifies the credentials and mints a token pair. Every denial
// surfaces as ErrInvalidCredentials; unknown email, wrong password and
// inactive account are indistinguishable to the caller.
func (s *Service) PasswordLogin(ctx context.Context, email, password string) (Login, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		obs.CountLogin("denied")
		return Login{}, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		obs.CountLogin("denied")
		return Login{}, ErrInvalidCredentials
	}
	if err != nil {
		obs.CountLogin("error")
		return Login{}, fmt.Errorf("load user: %w", err)
	}
	if user.Status != StatusActive {
		obs.CountLogin("denied")
		return Login{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(ctx, password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidInput) {
			obs.CountLogin("denied")
			return Login{}, ErrInvalidCredentials
		}
		obs.CountLogin("error")
		return Login{}, fmt.Errorf("verify password: %w", err)
	}

	roles, permissions, err := s.engine.Snapshot(ctx, user.ID)
	if err != nil {
		obs.CountLogin("error")
		return Login{}, err
	}
	pair, err := s.tokens.Issue(user.ID, user.Email, roles, permissions)
	if err != nil {
		obs.CountLogin("error")
		return Login{}, err
	}

	obs.CountLogin("ok")
	return loginFromPair(pair, user), nil
}

// Refresh exchanges an access/refresh token pair for a fresh one.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (Login, error) {
	pair, err := s.tokens.Refresh(ctx, accessToken, refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			obs.CountRefresh("denied")
		} else {
			obs.CountRefresh("error")
		}
		return Login{}, err
	}

	claims, err := s.tokens.ValidateAccess(pair.AccessToken)
	if err != nil {
		obs.CountRefresh("error")
		return Login{}, fmt.Errorf("validate minted token: %w", err)
	}
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		obs.CountRefresh("error")
		return Login{}, fmt.Errorf("load user: %w", err)
	}
	if user.Status != StatusActive {
		obs.CountRefresh("denied")
		return Login{}, ErrInvalidToken
	}

	obs.CountRefresh("ok")
	return loginFromPair(pair, user), nil
}

// Validate verifies an access token and returns its claims. The precise
// failure cause is collapsed here; callers see only ErrInvalidToken.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AuthorizeRoles answers against live storage.
func (s *Service) AuthorizeRoles(ctx context.Context, userID string, roleNames []string) (bool, error) {
	return s.engine.IsUserInRole(ctx, userID, roleNames)
}

// AuthorizePermissions answers against live storage.
func (s *Service) AuthorizePermissions(ctx context.Context, userID string, permissionCodes []string) (bool, error) {
	return s.engine.IsUserInPermission(ctx, userID, permissionCodes)
}

// ChangePassword verifies the current password, then rotates the security
// stamp and stores a hash derived from the new password and the new stamp.
// Previously issued access tokens stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if err := s.hasher.Verify(ctx, currentPassword, user.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidInput) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	stamp, err := s.hasher.GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, newPassword, stamp)
	if err != nil {
		return err
	}
	user.SecurityStamp = stamp
	user.PasswordHash = hash
	user.UpdatedBy = userID
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("store new credentials: %w", err)
	}
	return nil
}

func loginFromPair(pair Pair, user User) Login {
	display := user.DisplayName
	if display == "" {
		display = user.Name
	}
	return Login{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		UserID:           user.ID,
		DisplayName:      display,
	}
}
