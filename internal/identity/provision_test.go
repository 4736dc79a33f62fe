package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addRole("role-user", DefaultRoleName, PermFlashcardRead)
	coord := NewCoordinator(testHasher(t), store, store, store, store, DefaultRoleName)
	return coord, store
}

func TestCreateUserCommitsUserAndDefaultRole(t *testing.T) {
	coord, store := newTestCoordinator(t)
	ctx := context.Background()

	user, err := coord.CreateUser(ctx, UserDraft{
		Email:       "  Jo@Example.COM ",
		Name:        "Jo Doe",
		DisplayName: "Jo",
		CreatedBy:   "admin-1",
	}, "s3cret")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "jo@example.com", user.Email)
	assert.Equal(t, StatusActive, user.Status)
	assert.NotEmpty(t, user.SecurityStamp)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	stored, err := store.GetUserByEmail(ctx, "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.Equal(t, []string{"role-user"}, store.userRoles[user.ID])

	assert.Equal(t, 1, store.begun)
	assert.Equal(t, 1, store.committed)
	assert.Equal(t, 0, store.rolledBack)
}

func TestCreateUserRollsBackWhenRoleAssignmentFails(t *testing.T) {
	coord, store := newTestCoordinator(t)
	store.failAssign = errors.New("unique violation")
	ctx := context.Background()

	_, err := coord.CreateUser(ctx, UserDraft{Email: "jo@example.com", Name: "Jo"}, "s3cret")
	require.Error(t, err)

	// The user insert must not survive the failed role assignment.
	_, err = store.GetUserByEmail(ctx, "jo@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.rolledBack)
	assert.Equal(t, 0, store.committed)
}

func TestCreateUserRollsBackWhenDefaultRoleMissing(t *testing.T) {
	store := newMemStore() // no roles seeded
	coord := NewCoordinator(testHasher(t), store, store, store, store, DefaultRoleName)

	_, err := coord.CreateUser(context.Background(), UserDraft{Email: "jo@example.com", Name: "Jo"}, "pw")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.rolledBack)
	assert.Equal(t, 0, store.committed)
}

func TestCreateUserRollsBackOnCancellation(t *testing.T) {
	coord, store := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.CreateUser(ctx, UserDraft{Email: "jo@example.com", Name: "Jo"}, "pw")
	require.Error(t, err)
	assert.Equal(t, store.begun, store.committed+store.rolledBack,
		"every begun transaction must be finished")
	assert.Equal(t, 0, store.committed)
}

func TestCreateUserTxLeavesTransactionToCaller(t *testing.T) {
	coord, store := newTestCoordinator(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	user, err := coord.CreateUserTx(ctx, tx, UserDraft{Email: "jo@example.com", Name: "Jo"}, "pw")
	require.NoError(t, err)
	assert.Equal(t, 0, store.committed, "coordinator must not commit a caller-owned transaction")
	assert.Equal(t, 0, store.rolledBack)

	// Uncommitted work is invisible.
	_, err = store.GetUserByEmail(ctx, "jo@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Commit(ctx, tx))
	stored, err := store.GetUserByEmail(ctx, "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestCreateUserValidatesDraft(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		draft    UserDraft
		password string
	}{
		{"missing email", UserDraft{Name: "Jo"}, "pw"},
		{"email without at sign", UserDraft{Email: "jo.example.com", Name: "Jo"}, "pw"},
		{"missing name", UserDraft{Email: "jo@example.com"}, "pw"},
		{"empty password", UserDraft{Email: "jo@example.com", Name: "Jo"}, ""},
		{"deleted at creation", UserDraft{Email: "jo@example.com", Name: "Jo", Status: StatusDeleted}, "pw"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coord.CreateUser(ctx, tc.draft, tc.password)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.CreateUser(ctx, UserDraft{Email: "jo@example.com", Name: "Jo"}, "pw")
	require.NoError(t, err)

	_, err = coord.CreateUser(ctx, UserDraft{Email: "jo@example.com", Name: "Jo Again"}, "pw")
	require.ErrorIs(t, err, ErrConflict)
}
