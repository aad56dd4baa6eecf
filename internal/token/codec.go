// Package token issues and validates the signed access/refresh tokens that
// carry a session.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultAlgorithm  = "HS256"

	// Bearer is the token_type reported alongside a Pair.
	Bearer = "bearer"
)

// Class tags what a token may be used for.
type Class string

const (
	Access  Class = "access"
	Refresh Class = "refresh"
)

// ErrInvalid is the only error callers of Verify need to match on.
var ErrInvalid = errors.New("invalid token")

// Reason records which check rejected a token.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonSignature Reason = "signature"
	ReasonExpired   Reason = "expired"
	ReasonClass     Reason = "class"
	ReasonClaims    Reason = "claims"
)

// ValidationError keeps the rejection reason for logging. It matches ErrInvalid
// under errors.Is so the reason never has to leave the process.
type ValidationError struct {
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid token (%s)", e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

func (e *ValidationError) Unwrap() error { return e.Err }

// ReasonOf extracts the rejection reason from an error returned by Verify.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// Config is loaded once at startup and never changes for the life of a Codec.
type Config struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the signed payload.
type Claims struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone_number"`
	Class  Class  `json:"type"`
	jwt.RegisteredClaims
}

// Pair is the access/refresh couple handed out for every session event.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Codec signs and verifies tokens with a single process-wide key.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec validates cfg and applies defaults for zero TTLs and algorithm.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token TTLs must not be negative")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	c := &Codec{
		secret:     append([]byte(nil), cfg.Secret...),
		method:     method,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs a single token. A ttl of zero or less yields a token that is
// already expired.
func (c *Codec) Issue(subject, phone string, class Class, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: subject,
		Phone:  phone,
		Class:  class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", class, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssuePair mints an access and a refresh token for the same subject.
func (c *Codec) IssuePair(subject, phone string) (Pair, error) {
	access, accessExp, err := c.Issue(subject, phone, Access, c.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := c.Issue(subject, phone, Refresh, c.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        Bearer,
		ExpiresIn:        int64(c.accessTTL / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature, class and expiry, in that order. Every failure is a
// *ValidationError matching ErrInvalid.
func (c *Codec) Verify(signed string, expected Class) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var claims Claims
	_, err := parser.ParseWithClaims(signed, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, &ValidationError{Reason: classify(err), Err: err}
	}
	if claims.Class != expected {
		return Claims{}, &ValidationError{Reason: ReasonClass}
	}
	if claims.UserID == "" || claims.Phone == "" {
		return Claims{}, &ValidationError{Reason: ReasonClaims}
	}
	return claims, nil
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonClaims
	}
}
