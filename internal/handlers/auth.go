package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pubdetect/internal/backend"
	"pubdetect/internal/service"
	"pubdetect/internal/views"
)

// credentialsForm accepts both form posts and JSON. The identifier was
// labelled "email" in older clients.
type credentialsForm struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (f credentialsForm) identifier() string {
	if strings.TrimSpace(f.Username) != "" {
		return f.Username
	}
	return f.Email
}

func (h *HandlerSet) LoginPage(c *gin.Context) {
	page := views.AuthPage{Page: h.basePage(c, "Sign in")}
	if c.Query("registered") != "" {
		page.Notice = "Account created, you can sign in now."
	}
	c.HTML(http.StatusOK, "login.html", page)
}

func (h *HandlerSet) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", views.AuthPage{Page: h.basePage(c, "Register")})
}

func (h *HandlerSet) Login(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		h.authFailed(c, "login.html", "Sign in", form, http.StatusBadRequest, service.MsgFillAllFields)
		return
	}

	result := h.Auth.Login(c.Request.Context(), session(c), form.identifier(), form.Password)
	if !result.Success {
		h.authFailed(c, "login.html", "Sign in", form, authStatus(result.Err), result.Error)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "redirect": dashboardPath})
		return
	}
	redirectSeeOther(c, dashboardPath)
}

// RegisterUser signs the user in when the backend hands back a token and
// otherwise sends them to the login form.
func (h *HandlerSet) RegisterUser(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		h.authFailed(c, "register.html", "Register", form, http.StatusBadRequest, service.MsgFillAllFields)
		return
	}

	result := h.Auth.Register(c.Request.Context(), session(c), form.identifier(), form.Password)
	if !result.Success {
		h.authFailed(c, "register.html", "Register", form, authStatus(result.Err), result.Error)
		return
	}

	target := loginPath + "?registered=1"
	if result.SignedIn {
		target = dashboardPath
	}
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"authenticated": result.SignedIn, "redirect": target})
		return
	}
	redirectSeeOther(c, target)
}

func (h *HandlerSet) Logout(c *gin.Context) {
	s := session(c)
	h.Predictions.Forget(s.ID)
	h.Buffers.Reset(s.ID)
	h.streams.close(s.ID)

	if err := h.Auth.Logout(c.Request.Context(), s); err != nil {
		h.Log.Error().Err(err).Str("session_id", s.ID).Msg("logout failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	h.Themes.Forget(s.ID)
	redirectSeeOther(c, loginPath)
}

func (h *HandlerSet) authFailed(c *gin.Context, tmpl, title string, form credentialsForm, status int, msg string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	page := views.AuthPage{Page: h.basePage(c, title), Identifier: form.identifier()}
	page.Error = msg
	c.HTML(status, tmpl, page)
}

func authStatus(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthInFlight):
		return http.StatusConflict
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}
