package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMemberNotFound is returned by the credential store when no member has the username.
	ErrMemberNotFound = errors.New("member not found")
	// ErrDuplicateUsername is returned when registering a username that is already stored.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidRegistration marks registration input rejected before persistence.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrHashFormat marks a stored credential hash that cannot be parsed.
	ErrHashFormat = errors.New("malformed password hash")
	// ErrInvalidMemberState marks a stored member that cannot become a principal.
	ErrInvalidMemberState = errors.New("invalid member state")
	// ErrAuthenticationFailure is the single externally visible login failure.
	// Unknown usernames and wrong passwords both wrap it.
	ErrAuthenticationFailure = errors.New("bad credentials")
	// ErrBadPassword is the internal cause for a password that does not match.
	ErrBadPassword = errors.New("password mismatch")
)

// HashFormatError wraps the hashing library error for a malformed stored hash.
type HashFormatError struct {
	Err error
}

func (e *HashFormatError) Error() string {
	return fmt.Sprintf("%s: %v", ErrHashFormat, e.Err)
}

func (e *HashFormatError) Unwrap() []error {
	return []error{ErrHashFormat, e.Err}
}

// InvalidMemberStateError names the member field that broke the principal invariants.
type InvalidMemberStateError struct {
	Reason string
}

func (e *InvalidMemberStateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidMemberState, e.Reason)
}

func (e *InvalidMemberStateError) Unwrap() error {
	return ErrInvalidMemberState
}
