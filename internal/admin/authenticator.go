package admin

import (
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
)

// Authenticator verifies the admin password.
type Authenticator interface {
	Authenticate(password string) bool
}

// Argon2Authenticator checks passwords against an argon2id hash. An empty hash
// rejects every password.
type Argon2Authenticator struct {
	Hash   string
	Logger zerolog.Logger
}

// Authenticate implements Authenticator.
func (a Argon2Authenticator) Authenticate(password string) bool {
	if strings.TrimSpace(a.Hash) == "" || password == "" {
		return false
	}
	ok, err := argon2id.ComparePasswordAndHash(password, a.Hash)
	if err != nil {
		a.Logger.Error().Err(err).Msg("admin password hash is malformed")
		return false
	}
	return ok
}

// HashPassword produces an argon2id hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}
