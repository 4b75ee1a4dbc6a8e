package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RedirectIfAuthenticated keeps signed-in users off the login and
// register forms.
func RedirectIfAuthenticated(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAllowed(CurrentSession(c)) {
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}
