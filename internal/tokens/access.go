package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrSignerConfig = errors.New("token signer is not configured")

type AccessClaims struct {
	UID   uint     `json:"uid"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Identity struct {
	UserID   uint
	Username string
	Email    string
	Roles    []string
}

type SignedAccessToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer mints and verifies HS256 access tokens.
type Signer struct {
	Key       []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Now       func() time.Time
}

func NewSigner(key []byte, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{Key: key, Issuer: issuer, Audience: audience, AccessTTL: ttl}
}

func (s *Signer) validate() error {
	switch {
	case len(s.Key) == 0:
		return fmt.Errorf("%w: empty signing key", ErrSignerConfig)
	case s.Issuer == "":
		return fmt.Errorf("%w: empty issuer", ErrSignerConfig)
	case s.Audience == "":
		return fmt.Errorf("%w: empty audience", ErrSignerConfig)
	case s.AccessTTL <= 0:
		return fmt.Errorf("%w: non-positive duration", ErrSignerConfig)
	}
	return nil
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Signer) Issue(id Identity) (SignedAccessToken, error) {
	if err := s.validate(); err != nil {
		return SignedAccessToken{}, err
	}

	now := s.now()
	exp := now.Add(s.AccessTTL)
	jti := uuid.NewString()

	roles := make([]string, len(id.Roles))
	copy(roles, id.Roles)

	claims := AccessClaims{
		UID:   id.UserID,
		Email: id.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			ID:        jti,
			Issuer:    s.Issuer,
			Audience:  jwt.ClaimStrings{s.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return SignedAccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return SignedAccessToken{Token: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

// Parse checks signature, algorithm, issuer, audience and lifetime.
func (s *Signer) Parse(tokenStr string) (*AccessClaims, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return s.Key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithAudience(s.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid access token")
	}
	return &claims, nil
}
