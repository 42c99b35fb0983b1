package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	pkgjwt "github.com/weiawesome/wes-messenger/pkg/jwt"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/response"
)

const (
	UserIDKey     = "user_id"
	UsernameKey   = "username"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// AccountLoader resolves the user behind a validated token. It returns an
// error when the account does not exist.
type AccountLoader interface {
	LoadAccount(ctx context.Context, userID string) (username string, err error)
}

// AuthMiddleware validates JWT access tokens locally.
type AuthMiddleware struct {
	tokens   *pkgjwt.Manager
	accounts AccountLoader
}

// NewAuthMiddleware creates a new auth middleware. accounts may be nil, in
// which case only the token is checked.
func NewAuthMiddleware(tokens *pkgjwt.Manager, accounts AccountLoader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, accounts: accounts}
}

// RequireAuth returns a Gin middleware that validates the bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.handle(false)
}

// RequireAuthOrQuery is RequireAuth that also accepts ?token=, for clients
// such as browsers that cannot set headers on a WebSocket upgrade.
func (m *AuthMiddleware) RequireAuthOrQuery() gin.HandlerFunc {
	return m.handle(true)
}

func (m *AuthMiddleware) handle(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := extractToken(c, allowQuery)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, msg)
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := c.Request.Context()
		username := claims.Username
		if m.accounts != nil {
			name, err := m.accounts.LoadAccount(ctx, claims.UserID)
			if err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldUserID, claims.UserID).Msg("token for unknown account")
				response.Abort(c, http.StatusUnauthorized, "user not found")
				return
			}
			if name != "" {
				username = name
			}
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, username)

		c.Request = c.Request.WithContext(log.WithStr(ctx, log.FieldUserID, claims.UserID))

		c.Next()
	}
}

func extractToken(c *gin.Context, allowQuery bool) (string, string) {
	authHeader := c.GetHeader(AuthHeaderKey)
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			return "", "invalid authorization format"
		}
		return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix)), "missing token"
	}
	if allowQuery {
		if token := c.Query(TokenQueryKey); token != "" {
			return token, ""
		}
	}
	return "", "missing authorization header"
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
