package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// PrincipalKey is the echo context key holding the authenticated Principal.
const PrincipalKey = "principal"

// Principal is whoever passed authentication.  The booking core only cares
// that one is present; Kind is kept for logging.
type Principal struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"` // "staff" or "cron"
}

// Authenticator turns a bearer credential into a Principal.
type Authenticator interface {
	Authenticate(credential string) (Principal, bool)
}

// JWTAuthenticator accepts HS256 tokens signed with the shared secret.
// Issuing tokens is the job of the identity provider.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(raw string) (Principal, bool) {
	if raw == "" || len(a.secret) == 0 {
		return Principal{}, false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC so a token cannot pick its own key type.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Principal{}, false
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, false
	}
	return Principal{Subject: sub, Kind: "staff"}, true
}

// SecretAuthenticator accepts one static bearer secret, used by the
// scheduler that triggers sweeps.  An empty secret accepts nothing.
type SecretAuthenticator struct {
	secret string
}

func NewSecretAuthenticator(secret string) *SecretAuthenticator {
	return &SecretAuthenticator{secret: secret}
}

func (a *SecretAuthenticator) Authenticate(raw string) (Principal, bool) {
	if a.secret == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(a.secret)) != 1 {
		return Principal{}, false
	}
	return Principal{Subject: "cron", Kind: "cron"}, true
}

// RequireAuth returns a middleware that admits requests whose bearer
// credential is accepted by any of auths, and stores the Principal under
// PrincipalKey.
func RequireAuth(auths ...Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "UNAUTHORIZED"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			for _, a := range auths {
				if p, ok := a.Authenticate(raw); ok {
					c.Set(PrincipalKey, p)
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHORIZED"})
		}
	}
}

// PrincipalFrom returns the Principal stored by RequireAuth.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(PrincipalKey).(Principal)
	return p, ok
}
