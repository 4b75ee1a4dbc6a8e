package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pubdetect/internal/gauge"
)

// ToggleTheme flips the preference and sends the browser back where it
// came from.
func (h *HandlerSet) ToggleTheme(c *gin.Context) {
	s := session(c)
	next, err := h.Themes.For(s.ID).Toggle(c.Request.Context())
	if err != nil {
		h.Log.Error().Err(err).Str("session_id", s.ID).Msg("toggle theme failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not save the theme"})
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"theme": next})
		return
	}
	redirectSeeOther(c, backTarget(c))
}

// backTarget only follows same-site referers.
func backTarget(c *gin.Context) string {
	ref := c.Request.Referer()
	if ref == "" {
		return dashboardPath
	}
	u, err := c.Request.URL.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != c.Request.Host) || u.Path == "" {
		return dashboardPath
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

// Gauge renders the confidence gauge as SVG.
func (h *HandlerSet) Gauge(c *gin.Context) {
	value, err := strconv.ParseFloat(c.DefaultQuery("value", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a number"})
		return
	}
	opts := gauge.Options{}
	if raw := c.Query("dpr"); raw != "" {
		dpr, err := strconv.ParseFloat(raw, 64)
		if err != nil || dpr <= 0 || dpr > 4 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dpr must be between 0 and 4"})
			return
		}
		opts.PixelRatio = dpr
	}

	svg := gauge.New(value, c.Query("label"), opts).SVG()
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/svg+xml; charset=utf-8", []byte(svg))
}
