package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pubdetect/internal/models"
)

// IsAllowed decides whether a protected view may be entered.
func IsAllowed(session *models.ClientSession) bool {
	return session != nil && session.Authenticated && session.Token != ""
}

// RequireSession blocks protected routes. Pages get a redirect to the
// login form; API, XHR and websocket callers get a 401.
func RequireSession(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAllowed(CurrentSession(c)) {
			c.Next()
			return
		}

		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Redirect(http.StatusFound, loginPath)
		c.Abort()
	}
}

func wantsJSON(c *gin.Context) bool {
	if websocket.IsWebSocketUpgrade(c.Request) {
		return true
	}
	if strings.EqualFold(c.GetHeader("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
