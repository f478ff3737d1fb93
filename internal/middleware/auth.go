package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type ctxKey struct{}

// Claims identify the caller of an authenticated request.
type Claims struct {
	UserID    string
	Role      models.Role
	Token     string
	ExpiresAt time.Time
}

// Revoker reports tokens that were logged out before expiry or whose owner
// lost access to the account.
type Revoker interface {
	IsRevoked(ctx context.Context, token, userID string) (bool, error)
}

type Authenticator struct {
	revoker Revoker
	log     *logrus.Entry
}

func NewAuthenticator(revoker Revoker, log *logrus.Entry) *Authenticator {
	return &Authenticator{revoker: revoker, log: log}
}

// Handler rejects requests without a valid bearer token. Browsers cannot set
// headers on websocket upgrades, so access_token is accepted as a query
// parameter too.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		claims, err := validateToken(token)
		if err != nil {
			a.log.WithError(err).Debug("[AUTH] invalid token")
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		if a.revoker != nil {
			revoked, err := a.revoker.IsRevoked(r.Context(), token, claims.UserID)
			if err != nil {
				a.log.WithError(err).WithField("user_id", claims.UserID).Warn("[AUTH] revocation check failed")
			}
			if revoked {
				services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func validateToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("token is not valid")
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("unexpected claims type")
	}
	userID, _ := mc["user_id"].(string)
	role, _ := mc["role"].(string)
	if userID == "" || role == "" {
		return Claims{}, errors.New("token is missing user_id or role")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, errors.New("token is missing exp")
	}

	return Claims{UserID: userID, Role: models.Role(role), Token: tokenString, ExpiresAt: exp.Time}, nil
}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

// UserID returns the authenticated user, or "" outside the auth middleware.
func UserID(ctx context.Context) string {
	c, _ := ClaimsFrom(ctx)
	return c.UserID
}

func Role(ctx context.Context) models.Role {
	c, _ := ClaimsFrom(ctx)
	return c.Role
}

// RequireRole lets through only callers holding one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			for _, role := range roles {
				if c.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		})
	}
}
