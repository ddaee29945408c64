package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialAuthenticator(t *testing.T) {
	store, repo, hasher := newTestCredentialStore()
	ctx := context.Background()
	_, err := store.Register(ctx, RegisterRequest{Username: "alice", Password: "pw123"})
	require.NoError(t, err)
	auth := NewCredentialAuthenticator(store, hasher)

	t.Run("success", func(t *testing.T) {
		p, err := auth.Authenticate(ctx, "alice", "pw123")
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Username())
		assert.Equal(t, []string{"ROLE_USER"}, p.Authorities())
		assert.NotEmpty(t, p.CredentialHash())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrAuthenticationFailure)
		assert.ErrorIs(t, err, ErrBadPassword)
	})

	t.Run("unknown username", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "mallory", "pw123")
		require.ErrorIs(t, err, ErrAuthenticationFailure)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("empty username", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "", "pw123")
		require.ErrorIs(t, err, ErrAuthenticationFailure)
	})

	t.Run("corrupted hash is internal", func(t *testing.T) {
		repo.put(Member{Username: "broken", PasswordHash: "garbage", Roles: []Role{{Name: RoleUser}}})
		_, err := auth.Authenticate(ctx, "broken", "pw123")
		require.ErrorIs(t, err, ErrHashFormat)
		assert.NotErrorIs(t, err, ErrAuthenticationFailure)
	})

	t.Run("empty hash is invalid state", func(t *testing.T) {
		repo.put(Member{Username: "hollow"})
		_, err := auth.Authenticate(ctx, "hollow", "")
		require.ErrorIs(t, err, ErrInvalidMemberState)
		assert.NotErrorIs(t, err, ErrAuthenticationFailure)
	})
}

func TestCredentialAuthenticator_StoreFailureIsInternal(t *testing.T) {
	repo := newMemoryMemberRepository()
	repo.findErr = errors.New("connection refused")
	store := NewCredentialStore(repo, NewBcryptHasher(4), nil)
	auth := NewCredentialAuthenticator(store, NewBcryptHasher(4))

	_, err := auth.Authenticate(context.Background(), "alice", "pw123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthenticationFailure)
}

type countingHasher struct {
	PasswordHasher
	hashes, verifies int
}

func (h *countingHasher) Hash(plaintext string) (string, error) {
	h.hashes++
	return h.PasswordHasher.Hash(plaintext)
}

func (h *countingHasher) Verify(plaintext, hashed string) (bool, error) {
	h.verifies++
	return h.PasswordHasher.Verify(plaintext, hashed)
}

func TestCredentialAuthenticator_UnknownUserCostsOneVerify(t *testing.T) {
	hasher := &countingHasher{PasswordHasher: NewBcryptHasher(4)}
	auth := NewCredentialAuthenticator(newMemoryMemberRepository(), hasher)
	require.Equal(t, 1, hasher.hashes)

	for i := 0; i < 2; i++ {
		_, err := auth.Authenticate(context.Background(), "mallory", "pw123")
		require.ErrorIs(t, err, ErrAuthenticationFailure)
	}
	assert.Equal(t, 1, hasher.hashes, "no hashing on the login path")
	assert.Equal(t, 2, hasher.verifies)
}
