package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"pubdetect/internal/middleware"
	"pubdetect/internal/models"
	"pubdetect/internal/theme"
	"pubdetect/internal/views"
)

// basePage fills the fields the layout needs from the current session.
func (h *HandlerSet) basePage(c *gin.Context, title string) views.Page {
	session := middleware.CurrentSession(c)
	page := views.Page{Title: title, Theme: string(theme.Default)}
	if session == nil {
		return page
	}
	if t, err := h.Themes.Current(c.Request.Context(), session.ID); err == nil {
		page.Theme = string(t)
	} else {
		h.Log.Warn().Err(err).Str("session_id", session.ID).Msg("load theme failed")
	}
	page.SignedIn = middleware.IsAllowed(session)
	page.Username = session.Username
	return page
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(binding.MIMEHTML, binding.MIMEJSON) == binding.MIMEJSON
}

// session is only called behind the Session middleware.
func session(c *gin.Context) *models.ClientSession {
	return middleware.CurrentSession(c)
}

func redirectSeeOther(c *gin.Context, location string) {
	c.Redirect(http.StatusSeeOther, location)
}
