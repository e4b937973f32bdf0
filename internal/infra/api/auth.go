package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const adminRole = "admin"

// AdminClaims is the payload of an operator token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthGuard checks HS256 bearer tokens on the /api routes.
// An empty secret disables the check.
type AuthGuard struct {
	secret []byte
	log    *zerolog.Logger
}

func NewAuthGuard(secret string, logger *zerolog.Logger) *AuthGuard {
	l := logger.With().Str("component", "admin_auth").Logger()
	return &AuthGuard{secret: []byte(secret), log: &l}
}

func (a *AuthGuard) Enabled() bool { return len(a.secret) > 0 }

// Mint signs an operator token valid for ttl. Used by tooling and tests.
func (a *AuthGuard) Mint(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("admin jwt secret not configured")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthGuard) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthGuard) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != adminRole {
		return nil, errors.New("not an admin token")
	}
	return claims, nil
}

func (a *AuthGuard) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("admin request rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			a.log.Debug().Str("sub", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
			next.ServeHTTP(w, r)
		})
	}
}
