package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"pubdetect/internal/config"
	"pubdetect/internal/middleware"
)

func TestServerMiddlewareChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewHTTPServer(Options{
		Name: "test",
		HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 9999},
		CORS: &middleware.CORSOptions{},
	}, zerolog.Nop(), func(e *gin.Engine) {
		e.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		e.GET("/boom", func(c *gin.Context) { panic("boom") })
	})
	assert.Equal(t, "127.0.0.1:9999", srv.Addr())

	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_server_error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/ping",service="test",status="200"} 1`)
}
