package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSOptions struct {
	// AllowedOrigins empty means any origin. Without credentials that is
	// answered with a literal "*".
	AllowedOrigins   []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

func CORS(opts CORSOptions) gin.HandlerFunc {
	allowAll := len(opts.AllowedOrigins) == 0
	originMap := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		originMap[strings.TrimSpace(origin)] = struct{}{}
	}
	methods := strings.Join(opts.AllowMethods, ", ")
	headers := strings.Join(opts.AllowHeaders, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.Request.Header.Get("Origin")

		switch {
		case allowAll && !opts.AllowCredentials:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := originMap[origin]; ok || allowAll {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Add("Vary", "Origin")
		}

		if opts.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if methods != "" {
			h.Set("Access-Control-Allow-Methods", methods)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
