package core

import (
	"context"
	"errors"
	"fmt"
)

// MemberFinder is the lookup half of the credential store.
type MemberFinder interface {
	FindByUsername(ctx context.Context, username string) (*Member, error)
}

// CredentialAuthenticator checks a username/password pair against stored members.
type CredentialAuthenticator struct {
	members   MemberFinder
	hasher    PasswordHasher
	dummyHash string
}

// NewCredentialAuthenticator hashes the timing dummy up front so the first
// unknown-username login costs the same as later ones.
func NewCredentialAuthenticator(members MemberFinder, hasher PasswordHasher) *CredentialAuthenticator {
	dummy, _ := hasher.Hash("member-security-timing")
	return &CredentialAuthenticator{members: members, hasher: hasher, dummyHash: dummy}
}

// Authenticate returns the member's principal on success. Unknown usernames and
// wrong passwords both wrap ErrAuthenticationFailure; any other error is internal.
func (s *CredentialAuthenticator) Authenticate(ctx context.Context, username, password string) (*MemberPrincipal, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", ErrAuthenticationFailure)
	}

	m, err := s.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			s.equalizeTiming(password)
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailure, err)
		}
		return nil, fmt.Errorf("lookup member: %w", err)
	}

	principal, err := BuildPrincipal(*m)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, principal.CredentialHash())
	if err != nil {
		return nil, fmt.Errorf("verify credentials of %q: %w", username, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailure, ErrBadPassword)
	}
	return principal, nil
}

// equalizeTiming spends one hash comparison so unknown usernames cost the same as wrong passwords.
func (s *CredentialAuthenticator) equalizeTiming(password string) {
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}
