package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/utils"
)

// SessionMiddleware authenticates a request from its token header.
// Two token kinds are accepted: opaque session tokens held in Redis, and
// the stateless JWT access tokens minted at login. Either way the donor's
// id and role end up on the request context; anonymous requests pass
// through with no identity set.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		username, exists, err := config.GetRedisValue("Token:" + token)
		if err == nil && exists {
			user, userErr := models.ResolveSessionUser(c.Request.Context(), username)
			if userErr != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			c.Request = c.Request.WithContext(sessionContext(c.Request.Context(), token, user.Username, user.Name, user.ID, user.Role == models.UserRoleAdmin))
			c.Next()
			return
		}

		claims, jwtErr := utils.JwtValidate(token)
		if jwtErr != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(sessionContext(c.Request.Context(), token, claims.Username, claims.Username, claims.UserId, claims.Role == "Admin"))
		c.Next()
	}
}

func sessionContext(ctx context.Context, token string, username string, name string, userId int, isAdmin bool) context.Context {
	ctx = utils.SetTokenInContext(ctx, token)
	ctx = utils.SetUsernameInContext(ctx, username)
	ctx = utils.SetUserNameInContext(ctx, name)
	ctx = utils.SetUserIdInContext(ctx, userId)
	return utils.SetIsAdminInContext(ctx, isAdmin)
}
