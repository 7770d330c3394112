package bridge

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/hkdf"

	"camerabridge/internal/domain"
)

// DefaultTokenTTL is the lifetime of an access token
const DefaultTokenTTL = 60 * time.Second

// hkdfInfo binds derived keys to this token format
const hkdfInfo = "camerabridge access token v1"

// Claims is the signed content of an access token
type Claims struct {
	CameraID string `json:"cameraId"`
	jwt.RegisteredClaims
}

// AccessToken is an issued token and its validity window
type AccessToken struct {
	Token     string        `json:"token"`
	CameraID  string        `json:"cameraId"`
	IssuedAt  time.Time     `json:"issuedAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	TTL       time.Duration `json:"-"`
}

// ExpiresIn returns the TTL in whole seconds
func (t AccessToken) ExpiresIn() int {
	return int(t.TTL / time.Second)
}

// DeviceLookup answers whether a device id is registered
type DeviceLookup interface {
	Get(id string) (domain.Device, bool)
}

// TokenOption configures a TokenIssuer
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the time source for issue and verify
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// TokenIssuer signs and verifies short-lived, device-scoped access tokens.
// Tokens are never stored; verification is signature plus expiry only.
type TokenIssuer struct {
	key     []byte
	ttl     time.Duration
	devices DeviceLookup
	now     func() time.Time
	parser  *jwt.Parser
}

// NewTokenIssuer derives the HMAC key from secret and returns an issuer
func NewTokenIssuer(secret string, ttl time.Duration, devices DeviceLookup, opts ...TokenOption) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	t := &TokenIssuer{
		key:     key,
		ttl:     ttl,
		devices: devices,
		now:     time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL returns the configured token lifetime
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue creates a token for deviceID. Unknown devices are ErrNotFound.
func (t *TokenIssuer) Issue(deviceID string) (AccessToken, error) {
	if deviceID == "" {
		return AccessToken{}, domain.NewValidationError("cameraId", "required")
	}
	if t.devices != nil {
		if _, ok := t.devices.Get(deviceID); !ok {
			return AccessToken{}, fmt.Errorf("camera %s: %w", deviceID, domain.ErrNotFound)
		}
	}

	issued := t.now()
	// exp is whole seconds; round up so the token lives at least ttl
	expires := issued.Add(t.ttl)
	if whole := expires.Truncate(time.Second); !whole.Equal(expires) {
		expires = whole.Add(time.Second)
	}
	claims := Claims{
		CameraID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{
		Token:     signed,
		CameraID:  deviceID,
		IssuedAt:  issued,
		ExpiresAt: expires,
		TTL:       t.ttl,
	}, nil
}

// Verify checks signature and expiry and returns the device id the token
// names. Failures are *domain.AuthError and never say whether the device
// exists.
func (t *TokenIssuer) Verify(token string) (string, error) {
	if token == "" {
		return "", domain.NewAuthError(domain.AuthMissingToken)
	}

	var claims Claims
	_, err := t.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return "", domain.NewAuthError(domain.AuthInvalid)
	}
	if claims.CameraID == "" || claims.ExpiresAt == nil {
		return "", domain.NewAuthError(domain.AuthInvalid)
	}
	if !t.now().Before(claims.ExpiresAt.Time) {
		return "", domain.NewAuthError(domain.AuthExpired)
	}
	return claims.CameraID, nil
}
