package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pubdetect/internal/capture"
	"pubdetect/internal/history"
	"pubdetect/internal/models"
	"pubdetect/internal/service"
	"pubdetect/internal/views"
)

const (
	previewWait  = 300 * time.Millisecond
	historyWait  = 10 * time.Second
	multipartMem = 1 << 20
)

type predictionResponse struct {
	State        service.WorkflowState `json:"state"`
	Prediction   *models.Prediction    `json:"prediction,omitempty"`
	Error        string                `json:"error,omitempty"`
	PersistError string                `json:"persist_error,omitempty"`
	History      []models.Prediction   `json:"history"`
	HistoryError string                `json:"history_error,omitempty"`
}

func (h *HandlerSet) Dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", h.dashboardPage(c))
}

// dashboardPage loads the preview, the last outcome and the history.
func (h *HandlerSet) dashboardPage(c *gin.Context) views.DashboardPage {
	s := session(c)
	ctx := c.Request.Context()

	page := views.DashboardPage{
		Page:        h.basePage(c, "Dashboard"),
		Busy:        h.Predictions.State(s.ID) == service.StateSubmitting,
		MaxUploadMB: h.maxUploadBytes() >> 20,
	}
	if buf, ok := h.Buffers.Get(s.ID); ok {
		page.Preview = previewOf(ctx, buf)
	}

	var (
		records    []models.Prediction
		historyErr error
	)
	if out, ok := h.Predictions.Last(s.ID); ok {
		if out.Prediction != nil {
			page.Result = &views.ResultView{
				Label:        string(out.Prediction.Label),
				Confidence:   out.Prediction.Confidence,
				IsPub:        out.Prediction.IsPub(),
				PersistError: service.Message(out.PersistError),
			}
		}
		page.Error = service.Message(out.ClassifyError)
		records, historyErr = out.History, out.HistoryError
	} else {
		fetchCtx, cancel := context.WithTimeout(ctx, historyWait)
		records, historyErr = h.Predictions.History(fetchCtx, *s)
		cancel()
	}

	if historyErr != nil {
		h.Log.Warn().Err(historyErr).Str("session_id", s.ID).Msg("history unavailable")
		page.HistoryError = "could not load the history: " + service.Message(historyErr)
	}
	page.History = h.historyItems(records)
	page.Summary = history.Summarize(records)
	return page
}

// Predict accepts one uploaded image and runs the prediction workflow.
// Browsers are redirected back to the dashboard, which shows the outcome.
func (h *HandlerSet) Predict(c *gin.Context) {
	s := session(c)
	limit := h.maxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartMem)

	var outcome service.Outcome
	widget := capture.NewWidget(h.captureOptions(), func(ctx context.Context, buf *capture.Buffer) error {
		out, err := h.Predictions.Submit(ctx, *s, buf, func() { h.Buffers.Put(s.ID, buf) })
		outcome = out
		return err
	})

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.predictFailed(c, http.StatusRequestEntityTooLarge, capture.ErrTooLarge)
			return
		}
		h.predictFailed(c, http.StatusBadRequest, capture.ErrNoFile)
		return
	}

	if _, err := widget.FromForm(c.Request.Context(), form); err != nil {
		switch {
		case errors.Is(err, capture.ErrTooLarge):
			h.predictFailed(c, http.StatusRequestEntityTooLarge, err)
		case errors.Is(err, service.ErrSubmissionInFlight):
			h.predictFailed(c, http.StatusConflict, err)
		case errors.Is(err, capture.ErrNoFile), errors.Is(err, capture.ErrNotImage):
			h.predictFailed(c, http.StatusBadRequest, err)
		default:
			h.Log.Error().Err(err).Str("session_id", s.ID).Msg("read upload failed")
			h.predictFailed(c, http.StatusBadRequest, capture.ErrNoFile)
		}
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, predictionResponse{
			State:        outcome.State,
			Prediction:   outcome.Prediction,
			Error:        service.Message(outcome.ClassifyError),
			PersistError: service.Message(outcome.PersistError),
			History:      nonNil(outcome.History),
			HistoryError: service.Message(outcome.HistoryError),
		})
		return
	}
	redirectSeeOther(c, dashboardPath)
}

// Reset clears the preview and the shown result.
func (h *HandlerSet) Reset(c *gin.Context) {
	s := session(c)
	h.Predictions.Dismiss(s.ID)
	h.Buffers.Reset(s.ID)
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	redirectSeeOther(c, dashboardPath)
}

func (h *HandlerSet) predictFailed(c *gin.Context, status int, err error) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	page := h.dashboardPage(c)
	page.Error = err.Error()
	c.HTML(status, "dashboard.html", page)
}

func (h *HandlerSet) captureOptions() capture.Options {
	return capture.Options{
		MaxBytes:     h.maxUploadBytes(),
		PreviewWidth: h.Config.Capture.PreviewWidth,
	}
}

func (h *HandlerSet) maxUploadBytes() int64 {
	if h.Config.Capture.MaxUploadBytes > 0 {
		return h.Config.Capture.MaxUploadBytes
	}
	return capture.DefaultMaxBytes
}

func (h *HandlerSet) historyItems(records []models.Prediction) []views.HistoryItem {
	items := make([]views.HistoryItem, 0, len(records))
	for _, rec := range records {
		item := views.HistoryItem{
			Label:      string(rec.Label),
			Confidence: rec.ConfidenceText(),
			IsPub:      rec.IsPub(),
		}
		if rec.ImagePath != "" && h.Images != nil {
			item.ImageURL = h.Images.ImageURL(rec.ImagePath)
		}
		if rec.Timestamp != nil {
			item.Time = rec.Timestamp.Local().Format("2006-01-02 15:04:05")
		}
		items = append(items, item)
	}
	return items
}

// previewOf waits briefly for the scaled preview and falls back to the
// full image.
func previewOf(ctx context.Context, buf *capture.Buffer) string {
	if url, ok := buf.PreviewReady(); ok {
		return url
	}
	waitCtx, cancel := context.WithTimeout(ctx, previewWait)
	defer cancel()
	if url, err := buf.WaitPreview(waitCtx); err == nil && url != "" {
		return url
	}
	return buf.DataURL()
}

func nonNil(records []models.Prediction) []models.Prediction {
	if records == nil {
		return []models.Prediction{}
	}
	return records
}
