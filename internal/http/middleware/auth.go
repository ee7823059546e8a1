package middleware

import (
	"context"
	"net/http"
	"strings"

	"dating_platform/internal/domain"
	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
)

// UserLookup reloads the account behind a token.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// Auth validates the bearer JWT and reloads role and account status from the
// users table, so a suspension or role change takes effect on the next
// request rather than when the token expires.
func Auth(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}

		userID, err := service.ParseJWT(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found", "code": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal_error"})
			return
		}
		if !user.CanAct() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is inactive or suspended", "code": "account_inactive"})
			return
		}

		c.Set("user_id", user.ID)
		c.Set("role", user.Role)
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required", "code": "admin_required"})
			return
		}
		c.Next()
	}
}
