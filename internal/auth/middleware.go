package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireAuth rejects requests without an authenticated session. API
// requests get a JSON 401, everything else is redirected to login.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")

		if userID == nil {
			if len(c.Request.URL.Path) >= 5 && c.Request.URL.Path[:5] == "/api/" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		if email := session.Get("user_email"); email != nil {
			c.Set("user_email", email)
		}
		if name := session.Get("user_name"); name != nil {
			c.Set("user_name", name)
		}
		c.Next()
	}
}
