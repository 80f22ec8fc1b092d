package util

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceTokenSigner mints the short-lived HS256 tokens this service attaches
// to calls against the escrow and identity collaborators.
type ServiceTokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewServiceTokenSigner(secret, issuer string, ttl time.Duration) *ServiceTokenSigner {
	return &ServiceTokenSigner{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Sign issues a token naming the target collaborator as audience.
func (s *ServiceTokenSigner) Sign(audience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
