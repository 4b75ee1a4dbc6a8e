package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"pubdetect/internal/history"
	"pubdetect/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *HandlerSet) HistoryJSON(c *gin.Context) {
	records, err := h.Predictions.History(c.Request.Context(), *session(c))
	if err != nil {
		h.Log.Warn().Err(err).Msg("history fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": service.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":   nonNil(records),
		"summary": history.Summarize(records),
	})
}

func (h *HandlerSet) ExportHistory(c *gin.Context) {
	records, err := h.Predictions.History(c.Request.Context(), *session(c))
	if err != nil {
		h.Log.Warn().Err(err).Msg("history fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": service.Message(err)})
		return
	}

	var buf bytes.Buffer
	if err := history.ExportXLSX(&buf, records); err != nil {
		h.Log.Error().Err(err).Msg("history export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="predictions.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
