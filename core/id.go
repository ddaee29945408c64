package core

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gorilla/securecookie"
)

// newSessionID returns a 256-bit random identifier, base32 without padding.
func newSessionID() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("failed to generate session id")
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(b), "="), nil
}

// randomToken returns n random bytes encoded as URL-safe base64.
func randomToken(n int) (string, error) {
	b := securecookie.GenerateRandomKey(n)
	if b == nil {
		return "", errors.New("failed to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
