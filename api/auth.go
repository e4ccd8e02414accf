/*
auth.go - Bearer token authentication and actor extraction

PURPOSE:
  Turns the Authorization header into a reservation.Actor stored on the
  request context. Every /api route except /health runs behind Authenticate.

TOKENS:
  HS256 JWTs carrying the user id ("id") and role ("rol"). Tokens are minted
  by the login service in production and by cmd/devtoken locally.

FAILURES:
  401  missing header, malformed header, bad signature, expired token
  403  token is valid but the role is unknown or the user no longer exists
  500  the user lookup itself failed

SEE ALSO:
  - server.go: Where the middleware is mounted
  - reservation/access.go: What each role may modify
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cafeelangel/mesalista/reservation"
)

// Claims are the custom claims embedded in every access token.
type Claims struct {
	ID  int64  `json:"id"`
	Rol string `json:"rol"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for the given user and role.
func NewToken(secret string, userID int64, role reservation.Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := Claims{
		ID:  userID,
		Rol: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature and expiry and returns the claims.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// UserLookup resolves the user behind a token. reservation.Directory satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*reservation.User, error)
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor reservation.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (reservation.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(reservation.Actor)
	return a, ok
}

// Authenticate validates the Bearer token on every protected route.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeFailure(w, http.StatusUnauthorized, "Formato de token inválido", nil)
			return
		}

		claims, err := ParseToken(h.jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Token inválido o expirado", nil)
			return
		}
		if !reservation.KnownRole(reservation.Role(claims.Rol)) {
			writeFailure(w, http.StatusForbidden, "Rol no reconocido", nil)
			return
		}

		if h.users != nil {
			user, err := h.users.GetUser(r.Context(), claims.ID)
			if err != nil {
				h.log.Error().Err(err).Int64("user_id", claims.ID).Msg("user lookup failed")
				writeFailure(w, http.StatusInternalServerError, "Error en la autenticación", nil)
				return
			}
			if user == nil {
				writeFailure(w, http.StatusForbidden, "Usuario no encontrado", nil)
				return
			}
		}

		actor := reservation.Actor{ID: claims.ID, Role: reservation.Role(claims.Rol)}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole rejects requests whose actor role is not in the allowed list.
func RequireRole(roles ...reservation.Role) func(http.Handler) http.Handler {
	allowed := make(map[reservation.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok || !allowed[actor.Role] {
				writeFailure(w, http.StatusForbidden, "Permisos insuficientes", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
