package core

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// RegisterRequest carries registration input. Password is plaintext; it is hashed
// by the store and never persisted as given.
type RegisterRequest struct {
	Username string
	Password string
	Name     string
	Age      int
	Email    string
	// Roles defaults to the store's default roles when empty.
	Roles []string
}

// CredentialStore is the single authority for member lookup and registration.
type CredentialStore struct {
	members      MemberRepository
	hasher       PasswordHasher
	defaultRoles []string
}

func NewCredentialStore(members MemberRepository, hasher PasswordHasher, defaultRoles []string) *CredentialStore {
	if len(defaultRoles) == 0 {
		defaultRoles = []string{RoleUser}
	}
	return &CredentialStore{members: members, hasher: hasher, defaultRoles: defaultRoles}
}

// FindByUsername returns the member with its roles, or ErrMemberNotFound.
func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*Member, error) {
	return s.members.FindByUsername(ctx, username)
}

// Register hashes the password and persists a new member. An existing username
// yields ErrDuplicateUsername and leaves the stored member untouched.
func (s *CredentialStore) Register(ctx context.Context, req RegisterRequest) (*Member, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = s.defaultRoles
	}

	created, err := s.members.Create(ctx, Member{
		Username:     req.Username,
		PasswordHash: hash,
		Name:         req.Name,
		Age:          req.Age,
		Email:        req.Email,
	}, roles)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrInvalidRegistration) {
			return nil, err
		}
		return nil, fmt.Errorf("register member %q: %w", req.Username, err)
	}
	return created, nil
}

// List pages through members for administration.
func (s *CredentialStore) List(ctx context.Context, page, perPage int) ([]MemberListItem, int, error) {
	return s.members.List(ctx, page, perPage)
}

func validateRegistration(req RegisterRequest) error {
	switch {
	case req.Username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidRegistration)
	case utf8.RuneCountInString(req.Username) > MaxUsernameLength:
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidRegistration, MaxUsernameLength)
	case req.Password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidRegistration)
	case req.Age < 0:
		return fmt.Errorf("%w: age must not be negative", ErrInvalidRegistration)
	}
	return nil
}
