package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agencyhub/pkg/ctxkeys"
)

// AdminRoles are the tenant roles allowed to manage billing and purchases.
var AdminRoles = map[string]bool{
	"owner": true,
	"admin": true,
}

// JWTAuthMiddleware validates JWT tokens for web sessions and injects the
// authenticated identity into the Gin context.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			// Browser clients typically use httpOnly cookies for auth.
			if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
				auth = "Bearer " + cookieToken
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
				c.Abort()
				return
			}
		}

		parts := strings.Split(auth, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		claims, err := ValidateJWT(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT token"})
			c.Abort()
			return
		}

		c.Set(string(ctxkeys.KeyUserID), claims.UserID)
		c.Set(string(ctxkeys.KeyTenantID), claims.TenantID)
		c.Set(string(ctxkeys.KeyEmail), claims.Email)
		c.Set(string(ctxkeys.KeyRole), claims.Role)
		c.Set(string(ctxkeys.KeyAuthType), "jwt")
		c.Set(string(ctxkeys.KeyJWTToken), parts[1])
		c.Next()
	}
}

// IsTenantAdmin reports whether the authenticated caller holds an
// administrative role within the given tenant.
func IsTenantAdmin(c *gin.Context, tenantID string) bool {
	if c.GetString(string(ctxkeys.KeyTenantID)) != tenantID {
		return false
	}
	return AdminRoles[c.GetString(string(ctxkeys.KeyRole))]
}
