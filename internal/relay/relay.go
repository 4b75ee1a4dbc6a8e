// Package relay forwards browser uploads to the backend's inference
// route as base64 JSON.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pubdetect/internal/middleware"
)

const (
	imageField   = "image"
	multipartMem = 1 << 20
)

// Predictor posts {"image": <base64>} to path and returns the raw JSON
// answer.
type Predictor interface {
	Predict(ctx context.Context, path string, imageBase64 string) (json.RawMessage, error)
}

// CORS is the header set of every relay response.
var CORS = middleware.CORSOptions{
	AllowMethods: []string{http.MethodPost, http.MethodOptions},
	AllowHeaders: []string{"Content-Type", "Authorization"},
}

type Handler struct {
	predictor Predictor
	path      string
	maxBytes  int64
	log       zerolog.Logger
}

func NewHandler(predictor Predictor, predictPath string, maxBytes int64, log zerolog.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Handler{predictor: predictor, path: predictPath, maxBytes: maxBytes, log: log}
}

func (h *Handler) Register(router gin.IRouter) {
	cors := middleware.CORS(CORS)
	router.OPTIONS("/predict", cors, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.POST("/predict", cors, h.Predict)
}

func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartMem)

	file, header, err := c.Request.FormFile(imageField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image provided"})
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image provided"})
		return
	}

	raw, err := h.predictor.Predict(c.Request.Context(), h.path, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		h.log.Warn().Err(err).Str("filename", header.Filename).Msg("relay prediction failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "prediction failed"})
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
