package core

import (
	"context"
	"errors"
	"os"
)

const bootstrapAdminUsername = "admin"

// BootstrapAdmin creates an initial ADMIN member when none exists.
// It is idempotent: if any member holds the ADMIN role, it does nothing.
func BootstrapAdmin(ctx context.Context, members MemberRepository, credentials *CredentialStore, cfg Config, log *Logger) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := members.HasRole(ctx, RoleAdmin)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	_, err = credentials.Register(ctx, RegisterRequest{
		Username: bootstrapAdminUsername,
		Password: password,
		Name:     "Administrator",
		Roles:    []string{RoleAdmin, RoleUser},
	})
	if errors.Is(err, ErrDuplicateUsername) {
		log.Warn().Str("username", bootstrapAdminUsername).Msg("bootstrap skipped: username taken by a non-admin member")
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Info().Str("path", cfg.InitialAdminPasswordPath).Msg("initial admin created; credentials written to file")
	} else {
		log.Warn().Str("username", bootstrapAdminUsername).Str("password", password).Msg("initial admin created")
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	token, err := randomToken(length)
	if err != nil {
		return "", err
	}
	return token[:length], nil
}
