package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"variantforge/internal/apperr"
)

// Verifier validates bearer JWTs (HS256) before any generation work starts.
// An empty secret disables verification for local runs.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

// VerifyRequest checks the Authorization header and returns the token
// subject. Failures carry the authentication taxonomy so callers can
// short-circuit with no state change.
func (v *Verifier) VerifyRequest(r *http.Request) (string, error) {
	if !v.Enabled() {
		return "", nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", apperr.Authentication("missing bearer credential")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.Authentication("malformed authorization header")
	}
	return v.verifyToken(strings.TrimSpace(parts[1]))
}

func (v *Verifier) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Wrap(apperr.KindAuthentication, "invalid bearer credential", err)
	}
	sub, _ := token.Claims.GetSubject()
	return sub, nil
}

// Sign issues a token for the subject; used by tests and local tooling.
func (v *Verifier) Sign(subject string) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("verifier has no secret")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	return token.SignedString(v.secret)
}
