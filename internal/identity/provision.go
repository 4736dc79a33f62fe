package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Coordinator provisions users. Creating a user and assigning the default
// role happen on one transaction so no user ever exists without a baseline
// role.
type Coordinator struct {
	hasher      *Hasher
	users       UserStore
	roles       RoleStore
	userRoles   UserRoleStore
	txm         TransactionManager
	defaultRole string
}

func NewCoordinator(hasher *Hasher, users UserStore, roles RoleStore, userRoles UserRoleStore, txm TransactionManager, defaultRole string) *Coordinator {
	if defaultRole == "" {
		defaultRole = DefaultRoleName
	}
	return &Coordinator{
		hasher:      hasher,
		users:       users,
		roles:       roles,
		userRoles:   userRoles,
		txm:         txm,
		defaultRole: defaultRole,
	}
}

// CreateUserTx provisions a user on a caller-owned transaction. The caller
// began tx and remains responsible for committing or rolling it back; this
// method never finishes the transaction itself, so it composes into larger
// units of work.
func (c *Coordinator) CreateUserTx(ctx context.Context, tx Tx, draft UserDraft, password string) (User, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return User{}, err
	}

	salt, err := c.hasher.GenerateSalt()
	if err != nil {
		return User{}, err
	}
	hash, err := c.hasher.Hash(ctx, password, salt)
	if err != nil {
		return User{}, err
	}

	user := User{
		Email:         draft.Email,
		Name:          draft.Name,
		DisplayName:   draft.DisplayName,
		PasswordHash:  hash,
		SecurityStamp: salt,
		Status:        draft.Status,
		CreatedBy:     draft.CreatedBy,
		UpdatedBy:     draft.CreatedBy,
	}
	id, err := c.users.InsertUser(ctx, tx, user)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id

	role, err := c.roles.GetRoleByName(ctx, c.defaultRole)
	if err != nil {
		return User{}, fmt.Errorf("resolve default role %q: %w", c.defaultRole, err)
	}
	if err := c.userRoles.AssignRole(ctx, tx, UserRole{
		UserID:    id,
		RoleID:    role.ID,
		CreatedBy: draft.CreatedBy,
	}); err != nil {
		return User{}, fmt.Errorf("assign default role: %w", err)
	}
	return user, nil
}

// CreateUser is the self-contained variant: it begins its own transaction,
// delegates to CreateUserTx and commits, rolling back on any failure.
func (c *Coordinator) CreateUser(ctx context.Context, draft UserDraft, password string) (User, error) {
	tx, err := c.txm.Begin(ctx)
	if err != nil {
		return User{}, fmt.Errorf("begin provisioning: %w", err)
	}
	user, err := c.CreateUserTx(ctx, tx, draft, password)
	if err != nil {
		if rbErr := c.txm.Rollback(ctx, tx); rbErr != nil {
			return User{}, errors.Join(err, fmt.Errorf("rollback provisioning: %w", rbErr))
		}
		return User{}, err
	}
	if err := c.txm.Commit(ctx, tx); err != nil {
		return User{}, fmt.Errorf("commit provisioning: %w", err)
	}
	return user, nil
}

func normalizeDraft(draft UserDraft) (UserDraft, error) {
	draft.Email = strings.ToLower(strings.TrimSpace(draft.Email))
	draft.Name = strings.TrimSpace(draft.Name)
	draft.DisplayName = strings.TrimSpace(draft.DisplayName)
	if draft.Email == "" || !strings.Contains(draft.Email, "@") {
		return draft, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if draft.Name == "" {
		return draft, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	switch draft.Status {
	case "":
		draft.Status = StatusActive
	case StatusPending, StatusActive:
	default:
		return draft, fmt.Errorf("%w: status %q not allowed at creation", ErrInvalidInput, draft.Status)
	}
	return draft, nil
}
