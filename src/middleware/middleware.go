package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"compliance-stream/src/models"
	"compliance-stream/src/utils"

	"github.com/gin-gonic/gin"
)

// userContextKey and tokenContextKey are where the resolved user and the
// token it arrived with are stored on the gin context.
const (
	userContextKey  = "user"
	tokenContextKey = "token"
)

// IdentityResolver turns a bearer token into the user it belongs to.
type IdentityResolver interface {
	Identity(ctx context.Context, token string) (*models.User, error)
}

// AuthRequiredMiddleware rejects requests that do not carry a valid bearer
// token in the Authorization header.
func AuthRequiredMiddleware(auth IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.SendError(c, http.StatusUnauthorized, "Unauthorized", "Authorization header missing", c.FullPath())
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.SendError(c, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format", c.FullPath())
			c.Abort()
			return
		}

		resolveUser(c, auth, parts[1])
	}
}

// StreamAuthMiddleware authenticates the task-stream endpoint. The browser
// EventSource API cannot set headers, so the token arrives as a query
// parameter instead.
func StreamAuthMiddleware(auth IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			utils.SendError(c, http.StatusUnauthorized, "Unauthorized", "Token query parameter missing", c.FullPath())
			c.Abort()
			return
		}

		resolveUser(c, auth, token)
	}
}

// RequirePermission rejects authenticated requests whose user role lacks the
// named permission. It must run after one of the auth middlewares.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserFromContext(c)
		if user == nil || !user.Can(permission) {
			utils.SendError(c, http.StatusForbidden, "Forbidden", "Missing permission: "+permission, c.FullPath())
			c.Abort()
			return
		}
		c.Next()
	}
}

// TokenFromContext returns the bearer token an auth middleware validated,
// empty if none.
func TokenFromContext(c *gin.Context) string {
	value, ok := c.Get(tokenContextKey)
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return token
}

// UserFromContext returns the user an auth middleware resolved, nil if none.
func UserFromContext(c *gin.Context) *models.User {
	value, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func resolveUser(c *gin.Context, auth IdentityResolver, token string) {
	user, err := auth.Identity(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrTokenInvalid) {
			utils.SendError(c, http.StatusUnauthorized, "Unauthorized", "Token invalid or expired", c.FullPath())
		} else {
			utils.SendError(c, http.StatusInternalServerError, "Internal Error", "Failed to resolve identity: "+err.Error(), c.FullPath())
		}
		c.Abort()
		return
	}

	c.Set(userContextKey, user)
	c.Set(tokenContextKey, token)
	c.Next()
}
