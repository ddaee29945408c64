package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestCredentialStore() (*CredentialStore, *memoryMemberRepository, *BcryptHasher) {
	repo := newMemoryMemberRepository()
	hasher := NewBcryptHasher(bcrypt.MinCost)
	return NewCredentialStore(repo, hasher, []string{RoleUser}), repo, hasher
}

func TestCredentialStore_RegisterHashesPassword(t *testing.T) {
	store, _, hasher := newTestCredentialStore()
	ctx := context.Background()

	created, err := store.Register(ctx, RegisterRequest{Username: "alice", Password: "pw123", Name: "Alice", Age: 30, Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotEqual(t, "pw123", created.PasswordHash)

	found, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.PasswordHash, found.PasswordHash)
	assert.Equal(t, "Alice", found.Name)
	assert.Equal(t, 30, found.Age)

	ok, err := hasher.Verify("pw123", found.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCredentialStore_DefaultAndExplicitRoles(t *testing.T) {
	store, _, _ := newTestCredentialStore()
	ctx := context.Background()

	m, err := store.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.Len(t, m.Roles, 1)
	assert.Equal(t, RoleUser, m.Roles[0].Name)

	m, err = store.Register(ctx, RegisterRequest{Username: "root", Password: "pw", Roles: []string{RoleAdmin, RoleUser}})
	require.NoError(t, err)
	p, err := BuildPrincipal(*m)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ROLE_ADMIN", "ROLE_USER"}, p.Authorities())
}

func TestCredentialStore_DuplicateLeavesExistingUntouched(t *testing.T) {
	store, _, _ := newTestCredentialStore()
	ctx := context.Background()

	first, err := store.Register(ctx, RegisterRequest{Username: "alice", Password: "pw123"})
	require.NoError(t, err)

	_, err = store.Register(ctx, RegisterRequest{Username: "alice", Password: "other"})
	require.ErrorIs(t, err, ErrDuplicateUsername)

	found, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.PasswordHash, found.PasswordHash)
	assert.Equal(t, first.ID, found.ID)
}

func TestCredentialStore_RejectsInvalidInput(t *testing.T) {
	store, repo, _ := newTestCredentialStore()
	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"empty username", RegisterRequest{Password: "pw"}},
		{"long username", RegisterRequest{Username: strings.Repeat("u", MaxUsernameLength+1), Password: "pw"}},
		{"empty password", RegisterRequest{Username: "alice"}},
		{"negative age", RegisterRequest{Username: "alice", Password: "pw", Age: -1}},
		{"unknown role", RegisterRequest{Username: "alice", Password: "pw", Roles: []string{"GOD"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Register(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRegistration)
		})
	}
	assert.Empty(t, repo.members)
}

func TestCredentialStore_UsernameLengthCountsCharacters(t *testing.T) {
	store, _, _ := newTestCredentialStore()
	_, err := store.Register(context.Background(), RegisterRequest{Username: strings.Repeat("名", MaxUsernameLength), Password: "pw"})
	require.NoError(t, err)
}

func TestCredentialStore_FindUnknown(t *testing.T) {
	store, _, _ := newTestCredentialStore()
	_, err := store.FindByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrMemberNotFound)
}
