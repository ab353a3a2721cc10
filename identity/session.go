package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("identity: invalid token")
	ErrDomainNotAllowed = errors.New("identity: email domain not allowed")
)

// Session is the authenticated user behind a request. The resolver never
// sees this; only the review-flow surface consumes it.
type Session struct {
	UserID string
	Email  string
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier validates Supabase HS256 access tokens and enforces the
// allowed email-domain policy. An empty domain disables the policy.
type Verifier struct {
	secret        []byte
	allowedDomain string
}

func NewVerifier(secret, allowedDomain string) *Verifier {
	return &Verifier{
		secret:        []byte(secret),
		allowedDomain: strings.ToLower(strings.TrimSpace(allowedDomain)),
	}
}

// Verify parses and validates a bearer token, returning the session it
// carries.
func (v *Verifier) Verify(tokenString string) (*Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	if v.allowedDomain != "" {
		domain := emailDomain(c.Email)
		if domain != v.allowedDomain {
			return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, domain)
		}
	}

	return &Session{UserID: c.Subject, Email: c.Email}, nil
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
