package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/boltstore"
)

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltUserRepo_SaveAndFind(t *testing.T) {
	store := openStore(t)
	users, roles := NewUserRepoBolt(store), NewRoleRepoBolt(store)
	ctx := context.Background()
	require.NoError(t, roles.Save(ctx, &AppRole{Name: "USER"}))

	u := &AppUser{Username: "user1", PasswordHash: "h", Email: "u@x.io", Roles: []string{"USER"}}
	require.NoError(t, users.Save(ctx, u))
	require.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "user1", byID.Username)
	assert.Equal(t, []string{"USER"}, byID.Roles)

	byName, err := users.FindByUsername(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	_, err = users.FindByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestBoltUserRepo_UsernameUnique(t *testing.T) {
	store := openStore(t)
	users := NewUserRepoBolt(store)
	ctx := context.Background()

	require.NoError(t, users.Save(ctx, &AppUser{Username: "user1"}))
	err := users.Save(ctx, &AppUser{Username: "user1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}

func TestBoltUserRepo_RenameMovesIndex(t *testing.T) {
	store := openStore(t)
	users := NewUserRepoBolt(store)
	ctx := context.Background()

	u := &AppUser{Username: "old"}
	require.NoError(t, users.Save(ctx, u))
	u.Username = "new"
	require.NoError(t, users.Save(ctx, u))

	_, err := users.FindByUsername(ctx, "old")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	got, err := users.FindByUsername(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestBoltUserRepo_UnknownRoleRejected(t *testing.T) {
	store := openStore(t)
	users := NewUserRepoBolt(store)

	err := users.Save(context.Background(), &AppUser{Username: "user1", Roles: []string{"ROOT"}})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestBoltUserRepo_DeleteAndList(t *testing.T) {
	store := openStore(t)
	users := NewUserRepoBolt(store)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, users.Save(ctx, &AppUser{Username: name}))
	}

	list, total, err := users.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "bob", list[1].Username)

	list, _, err = users.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "charlie", list[0].Username)

	bob, err := users.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, users.DeleteByID(ctx, bob.ID))
	require.NoError(t, users.DeleteByID(ctx, "does-not-exist"))

	_, total, err = users.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	_, err = users.FindByUsername(ctx, "bob")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestBoltRoleRepo(t *testing.T) {
	store := openStore(t)
	users, roles := NewUserRepoBolt(store), NewRoleRepoBolt(store)
	ctx := context.Background()

	require.NoError(t, roles.Save(ctx, &AppRole{Name: "USER"}))
	require.NoError(t, roles.Save(ctx, &AppRole{Name: "ADMIN"}))

	list, total, err := roles.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "ADMIN", list[0].Name)

	u := &AppUser{Username: "admin", Roles: []string{"ADMIN", "USER"}}
	require.NoError(t, users.Save(ctx, u))

	require.NoError(t, roles.DeleteByID(ctx, "ADMIN"))
	_, err = roles.FindByID(ctx, "ADMIN")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	got, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, got.Roles, "deleting a role drops it from its holders")
}

func newBoltService(t *testing.T) (*Service, *boltstore.Store) {
	t.Helper()
	store := openStore(t)
	svc := NewService(NewUserRepoBolt(store), NewRoleRepoBolt(store), store, auth.NewBcryptHasher(bcrypt.MinCost), zerolog.Nop())
	return svc, store
}

func TestService_Bolt_RoleGrantIsDurable(t *testing.T) {
	svc, _ := newBoltService(t)
	ctx := context.Background()

	_, err := svc.AddNewRole(ctx, "USER")
	require.NoError(t, err)
	_, err = svc.AddNewRole(ctx, "ADMIN")
	require.NoError(t, err)
	_, err = svc.AddNewUser(ctx, "admin", "1234", "1234", "")
	require.NoError(t, err)

	require.NoError(t, svc.AddRoleToUser(ctx, "admin", "USER"))
	require.NoError(t, svc.AddRoleToUser(ctx, "admin", "ADMIN"))

	u, found, err := svc.LoadUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.True(t, found)
	assert.ElementsMatch(t, []string{"USER", "ADMIN"}, u.Roles)

	require.NoError(t, svc.RemoveRoleFromUser(ctx, "admin", "ADMIN"))
	u, _, err = svc.LoadUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, u.Roles)
}

func TestService_Bolt_MismatchPersistsNothing(t *testing.T) {
	svc, _ := newBoltService(t)
	ctx := context.Background()

	_, err := svc.AddNewUser(ctx, "user2", "1234", "4321", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, found, err := svc.LoadUserByUsername(ctx, "user2")
	require.NoError(t, err)
	assert.False(t, found)

	_, total, err := svc.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_Bolt_DuplicateUser(t *testing.T) {
	svc, _ := newBoltService(t)
	ctx := context.Background()

	_, err := svc.AddNewUser(ctx, "user1", "1234", "1234", "")
	require.NoError(t, err)
	_, err = svc.AddNewUser(ctx, "user1", "1234", "1234", "")
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}
