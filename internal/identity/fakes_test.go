package identity

import (
	"context"
	"fmt"
	"sync"
)

// memStore is an in-memory implementation of every storage interface in this
// package. Writes made under a transaction handle stay staged until Commit
// and vanish on Rollback, which is what the provisioning tests lean on.
type memStore struct {
	mu sync.Mutex

	users       map[string]User
	byEmail     map[string]string
	roles       map[string]Role
	userRoles   map[string][]string // user id -> role ids
	rolePerms   map[string][]string // role id -> permission codes
	directPerms map[string][]string // user id -> permission codes

	staged map[Tx][]func()
	nextID int

	begun      int
	committed  int
	rolledBack int
	queries    int

	failAssign error
	failInsert error
}

type memTx struct{ n int }

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]User{},
		byEmail:     map[string]string{},
		roles:       map[string]Role{},
		userRoles:   map[string][]string{},
		rolePerms:   map[string][]string{},
		directPerms: map[string][]string{},
		staged:      map[Tx][]func(){},
	}
}

func (m *memStore) addRole(id, name string, codes ...string) {
	m.roles[id] = Role{ID: id, Name: name}
	m.rolePerms[id] = codes
}

func (m *memStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%04d", m.nextID)
}

func (m *memStore) apply(tx Tx, op func()) {
	if tx == nil {
		op()
		return
	}
	m.staged[tx] = append(m.staged[tx], op)
}

func (m *memStore) Begin(context.Context) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun++
	return &memTx{n: m.begun}, nil
}

func (m *memStore) Commit(_ context.Context, tx Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.staged[tx] {
		op()
	}
	delete(m.staged, tx)
	m.committed++
	return nil
}

func (m *memStore) Rollback(_ context.Context, tx Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staged, tx)
	m.rolledBack++
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	id, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *memStore) InsertUser(ctx context.Context, tx Tx, user User) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.failInsert != nil {
		return "", m.failInsert
	}
	if _, exists := m.byEmail[user.Email]; exists {
		return "", ErrConflict
	}
	id := m.genID()
	user.ID = id
	m.apply(tx, func() {
		m.users[id] = user
		m.byEmail[user.Email] = id
	})
	return id, nil
}

func (m *memStore) UpdateUser(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetRoleByID(_ context.Context, id string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memStore) GetRoleByName(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memStore) ListRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memStore) ListPermissions(context.Context) ([]Permission, error) {
	return nil, nil
}

func (m *memStore) EnsurePermissions(context.Context, []Permission) error { return nil }

func (m *memStore) SetRolePermissions(_ context.Context, roleID string, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolePerms[roleID] = codes
	return nil
}

func (m *memStore) AssignRole(ctx context.Context, tx Tx, ur UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failAssign != nil {
		return m.failAssign
	}
	m.apply(tx, func() {
		m.userRoles[ur.UserID] = append(m.userRoles[ur.UserID], ur.RoleID)
	})
	return nil
}

func (m *memStore) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	var out []Role
	for _, roleID := range m.userRoles[userID] {
		out = append(out, m.roles[roleID])
	}
	return out, nil
}

func (m *memStore) UserInAnyRole(_ context.Context, userID string, names []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	want := map[string]struct{}{}
	for _, n := range names {
		want[n] = struct{}{}
	}
	for _, roleID := range m.userRoles[userID] {
		if _, ok := want[m.roles[roleID].Name]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GrantPermission(_ context.Context, up UserPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directPerms[up.UserID] = append(m.directPerms[up.UserID], up.PermissionID)
	return nil
}

func (m *memStore) effectivePerms(userID string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(code string) {
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	for _, roleID := range m.userRoles[userID] {
		for _, code := range m.rolePerms[roleID] {
			add(code)
		}
	}
	for _, code := range m.directPerms[userID] {
		add(code)
	}
	return out
}

func (m *memStore) PermissionsForUser(_ context.Context, userID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	var out []Permission
	for _, code := range m.effectivePerms(userID) {
		out = append(out, Permission{Code: code})
	}
	return out, nil
}

func (m *memStore) UserInAnyPermission(_ context.Context, userID string, codes []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	want := map[string]struct{}{}
	for _, c := range codes {
		want[c] = struct{}{}
	}
	for _, code := range m.effectivePerms(userID) {
		if _, ok := want[code]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) PermissionsForRoles(_ context.Context, roleIDs []string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	seen := map[string]struct{}{}
	var out []Permission
	for _, roleID := range roleIDs {
		for _, code := range m.rolePerms[roleID] {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				out = append(out, Permission{Code: code})
			}
		}
	}
	return out, nil
}

func (m *memStore) RolesInAnyPermission(_ context.Context, roleIDs []string, codes []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	want := map[string]struct{}{}
	for _, c := range codes {
		want[c] = struct{}{}
	}
	for _, roleID := range roleIDs {
		for _, code := range m.rolePerms[roleID] {
			if _, ok := want[code]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func testHasher(t interface{ Fatalf(string, ...any) }) *Hasher {
	hasher, err := NewHasher(HashParams{
		MemoryKiB:      1024,
		Iterations:     1,
		Parallelism:    1,
		SaltLength:     16,
		KeyLength:      32,
		MaxPasswordLen: 512,
		MaxConcurrent:  2,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return hasher
}

func testCodec(t interface{ Fatalf(string, ...any) }) *Codec {
	codec, err := NewCodec("test-secret-0123456789", "rexcards", "rexcards-api")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}
