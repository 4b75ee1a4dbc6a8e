package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pubdetect/internal/capture"
	"pubdetect/internal/config"
	"pubdetect/internal/middleware"
	"pubdetect/internal/repository"
	"pubdetect/internal/service"
	"pubdetect/internal/theme"
)

const (
	loginPath     = "/login"
	dashboardPath = "/dashboard"
	webcamStream  = "/webcam/stream"
)

// ImageLinker turns a stored image_path into a URL the browser can load.
type ImageLinker interface {
	ImageURL(imagePath string) string
}

type Deps struct {
	Log         zerolog.Logger
	Config      *config.AppConfig
	Sessions    repository.SessionStore
	Auth        *service.AuthService
	Predictions *service.PredictionService
	Themes      *theme.Registry
	Buffers     *capture.Buffers
	Images      ImageLinker
	Checks      []HealthCheck
}

type HandlerSet struct {
	Deps
	streams  *streamRegistry
	upgrader websocket.Upgrader
}

func NewHandlerSet(deps Deps) *HandlerSet {
	return &HandlerSet{
		Deps:    deps,
		streams: newStreamRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (h *HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/gauge.svg", h.Gauge)

	sessionOpts := middleware.SessionOptions{
		CookieName: h.Config.Session.CookieName,
		Secret:     h.Config.Session.Secret,
		TTL:        h.Config.Session.TTL,
		Secure:     h.Config.Session.Secure,
	}
	app := router.Group("/")
	app.Use(middleware.Session(h.Sessions, sessionOpts, h.Log))

	app.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, dashboardPath)
	})
	app.POST("/theme/toggle", h.ToggleTheme)
	app.POST("/logout", h.Logout)

	guest := app.Group("/")
	guest.Use(middleware.RedirectIfAuthenticated(dashboardPath))
	guest.GET("/login", h.LoginPage)
	guest.POST("/login", h.Login)
	guest.GET("/register", h.RegisterPage)
	guest.POST("/register", h.RegisterUser)

	protected := app.Group("/")
	protected.Use(middleware.RequireSession(loginPath))
	protected.GET(dashboardPath, h.Dashboard)
	protected.POST("/dashboard/predict", h.Predict)
	protected.POST("/dashboard/reset", h.Reset)
	protected.GET("/webcam", h.WebcamPage)
	protected.GET(webcamStream, h.WebcamStream)
	protected.GET("/history.json", h.HistoryJSON)
	protected.GET("/history/export.xlsx", h.ExportHistory)
}
