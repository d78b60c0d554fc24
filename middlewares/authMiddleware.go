package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inayat82/pos-backoffice/utils"
)

// AuthMiddleware resolves a Bearer JWT into the request context: admin
// id, email and the raw token. Requests without a token pass through;
// handlers that need a tenant fail on the missing admin id.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.AdminId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), auth)
		ctx = utils.SetAdminIdInContext(ctx, customClaim.AdminId)
		ctx = utils.SetUsernameInContext(ctx, customClaim.Email)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin blocks requests that did not authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminId, ok := utils.GetAdminIdFromContext(c.Request.Context()); !ok || adminId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
