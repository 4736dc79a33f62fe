package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"rexcards.org/internal/identity"
)

type stubAuth struct {
	loginFn     func(ctx context.Context, email, password string) (identity.Login, error)
	refreshFn   func(ctx context.Context, access, refresh string) (identity.Login, error)
	validateFn  func(ctx context.Context, token string) (*identity.Claims, error)
	authorizeFn func(ctx context.Context, userID string, codes []string) (bool, error)
}

func (s *stubAuth) PasswordLogin(ctx context.Context, email, password string) (identity.Login, error) {
	if s.loginFn == nil {
		return identity.Login{}, errors.New("login not stubbed")
	}
	return s.loginFn(ctx, email, password)
}

func (s *stubAuth) Refresh(ctx context.Context, access, refresh string) (identity.Login, error) {
	if s.refreshFn == nil {
		return identity.Login{}, errors.New("refresh not stubbed")
	}
	return s.refreshFn(ctx, access, refresh)
}

func (s *stubAuth) Validate(ctx context.Context, token string) (*identity.Claims, error) {
	if s.validateFn == nil {
		return nil, identity.ErrInvalidToken
	}
	return s.validateFn(ctx, token)
}

func (s *stubAuth) AuthorizePermissions(ctx context.Context, userID string, codes []string) (bool, error) {
	if s.authorizeFn == nil {
		// Default to the same semantics as the claims snapshot.
		claims, ok := identity.ClaimsFromContext(ctx)
		if !ok {
			return false, nil
		}
		return identity.NewClaimsEvaluator(claims).IsUserInPermission(ctx, userID, codes)
	}
	return s.authorizeFn(ctx, userID, codes)
}

type stubProvisioner struct {
	createFn func(ctx context.Context, draft identity.UserDraft, password string) (identity.User, error)
}

func (s *stubProvisioner) CreateUser(ctx context.Context, draft identity.UserDraft, password string) (identity.User, error) {
	if s.createFn == nil {
		return identity.User{}, errors.New("create not stubbed")
	}
	return s.createFn(ctx, draft, password)
}

type stubRoles struct {
	byID map[string]identity.Role
}

func (s *stubRoles) GetRoleByID(_ context.Context, id string) (identity.Role, error) {
	role, ok := s.byID[id]
	if !ok {
		return identity.Role{}, identity.ErrNotFound
	}
	return role, nil
}

func (s *stubRoles) GetRoleByName(_ context.Context, name string) (identity.Role, error) {
	for _, role := range s.byID {
		if role.Name == name {
			return role, nil
		}
	}
	return identity.Role{}, identity.ErrNotFound
}

func (s *stubRoles) ListRoles(context.Context) ([]identity.Role, error) {
	var out []identity.Role
	for _, role := range s.byID {
		out = append(out, role)
	}
	return out, nil
}

type stubUserRoles struct {
	assigned  []identity.UserRole
	assignErr error
}

func (s *stubUserRoles) AssignRole(_ context.Context, _ identity.Tx, ur identity.UserRole) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	s.assigned = append(s.assigned, ur)
	return nil
}

func (s *stubUserRoles) RolesForUser(context.Context, string) ([]identity.Role, error) {
	return nil, nil
}

func (s *stubUserRoles) UserInAnyRole(context.Context, string, []string) (bool, error) {
	return false, nil
}

type stubPermissions struct {
	catalog []identity.Permission
	sets    map[string][]string
	setErr  error
}

func (s *stubPermissions) ListPermissions(context.Context) ([]identity.Permission, error) {
	return s.catalog, nil
}

func (s *stubPermissions) EnsurePermissions(context.Context, []identity.Permission) error {
	return nil
}

func (s *stubPermissions) SetRolePermissions(_ context.Context, roleID string, codes []string) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.sets == nil {
		s.sets = map[string][]string{}
	}
	s.sets[roleID] = codes
	return nil
}

type readyOK struct{}

func (readyOK) Check(context.Context) error { return nil }

type readyFail struct{}

func (readyFail) Check(context.Context) error { return errors.New("db down") }

// adminClaims is what the stub validator returns for the "admin-token"
// bearer token.
func adminClaims() *identity.Claims {
	return &identity.Claims{
		Email:       "root@example.com",
		TokenType:   identity.TokenTypeAccess,
		Roles:       []string{"Admin"},
		Permissions: []string{identity.PermUserManage, identity.PermRoleManage, identity.PermPermissionManage},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "admin-1",
		},
	}
}

func memberClaims() *identity.Claims {
	return &identity.Claims{
		Email:            "jo@example.com",
		TokenType:        identity.TokenTypeAccess,
		Roles:            []string{"User"},
		Permissions:      []string{identity.PermFlashcardRead},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}
}

func tokenValidator(t *testing.T) func(ctx context.Context, token string) (*identity.Claims, error) {
	t.Helper()
	return func(_ context.Context, token string) (*identity.Claims, error) {
		switch token {
		case "admin-token":
			return adminClaims(), nil
		case "member-token":
			return memberClaims(), nil
		default:
			return nil, identity.ErrInvalidToken
		}
	}
}

type apiFixture struct {
	api   *API
	auth  *stubAuth
	prov  *stubProvisioner
	roles *stubRoles
	urs   *stubUserRoles
	perms *stubPermissions
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		auth:  &stubAuth{validateFn: tokenValidator(t)},
		prov:  &stubProvisioner{},
		roles: &stubRoles{byID: map[string]identity.Role{}},
		urs:   &stubUserRoles{},
		perms: &stubPermissions{},
	}
	f.api = New(readyOK{}, "test", Deps{
		Auth:        f.auth,
		Provisioner: f.prov,
		Roles:       f.roles,
		UserRoles:   f.urs,
		Permissions: f.perms,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)
	return rec
}
