package fleet

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is the fleet auth bearer token lifetime (§6 ADD, Fleet HTTP
// auth): short-lived enough that a captured token is useless past a
// single poll cycle, long enough to tolerate clock skew between the GM
// and an LM host.
const tokenTTL = 60 * time.Second

// TokenIssuer mints short-lived HS256 bearer tokens the GM presents
// when polling an LM's health endpoint (§4.7.4, §4.8.3). Grounded on
// the teacher's jwt.MapClaims/SigningMethodHS256 idiom (seen in its JWT
// test helper) rather than the OIDC/Keycloak path the teacher uses for
// end-user auth: fleet auth is a single shared secret between
// internally-controlled processes, not a third-party identity
// provider, so a symmetric-key library call is the appropriate scope.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Mint returns a signed token asserting subject lmID, valid for
// tokenTTL from now.
func (i *TokenIssuer) Mint(lmID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": lmID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("fleet: sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks bearer tokens an LM receives on its health endpoint
// (§8 ADD 9). An LM rejects any token it cannot verify without mutating
// any state — in particular without recording a health-poll result.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates token, returning the asserted subject
// (lm_id) on success. Rejects tokens with the wrong signing method,
// wrong signature, or an expired/not-yet-valid exp/iat — jwt/v5's
// ParseWithClaims enforces exp/nbf itself when present.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("fleet: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("fleet: verify token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("fleet: token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("fleet: invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("fleet: missing subject")
	}
	return sub, nil
}
