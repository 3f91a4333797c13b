package admin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	tokenIssuer   = "proride-store"
	tokenAudience = "proride-admin"
	adminSubject  = "admin"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("admin: invalid token")

// Tokens issues and verifies HS256 admin bearer tokens.
type Tokens struct {
	secret    []byte
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewTokens constructs a token issuer. The secret must be non-empty.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("admin: token secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, clockSkew: 30 * time.Second, now: time.Now}, nil
}

// WithClock replaces the time source.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// Issue signs a new admin token and returns it with its expiry.
func (t *Tokens) Issue() (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	token, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(adminSubject).
		Issuer(tokenIssuer).
		Audience([]string{tokenAudience}).
		IssuedAt(now).
		NotBefore(now.Add(-t.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry.
func (t *Tokens) Verify(token string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidToken
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if algorithm != jwa.HS256 {
		return fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, t.secret), jwt.WithValidate(false))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	err = jwt.Validate(parsed,
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithAcceptableSkew(t.clockSkew),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithSubject(adminSubject),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("expected exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("missing or none algorithm")
	}
	return alg, nil
}
