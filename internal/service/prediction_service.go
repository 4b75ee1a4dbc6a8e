package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pubdetect/internal/audit"
	"pubdetect/internal/backend"
	"pubdetect/internal/capture"
	"pubdetect/internal/history"
	"pubdetect/internal/models"
)

type WorkflowState string

const (
	StateIdle       WorkflowState = "idle"
	StateSubmitting WorkflowState = "submitting"
	StateSucceeded  WorkflowState = "succeeded"
	StateFailed     WorkflowState = "failed"
)

type PredictionBackend interface {
	UploadImage(ctx context.Context, token string, filename string, contentType string, data []byte) (backend.Classification, error)
	SavePrediction(ctx context.Context, token string, p models.Prediction) error
	ListPredictions(ctx context.Context, token string) ([]models.Prediction, error)
}

// Archiver keeps a copy of every submitted image.
type Archiver interface {
	PutCapture(ctx context.Context, data []byte, contentType, ext string, meta map[string]string) (string, error)
}

// Outcome is the result of one submission. Classification and
// persistence are reported separately so a saved-nothing result can
// still be shown.
type Outcome struct {
	State         WorkflowState
	Source        capture.Source
	Prediction    *models.Prediction
	ClassifyError error
	PersistError  error
	History       []models.Prediction
	HistoryError  error
	ArchiveKey    string
	CompletedAt   time.Time
}

// workflow is the state machine of one client. gen changes on Dismiss
// so an outcome finishing after a reset is not stored.
type workflow struct {
	mu      sync.Mutex
	state   WorkflowState
	gen     uint64
	last    *Outcome
	touched time.Time
}

func (w *workflow) begin() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return 0, false
	}
	w.state = StateSubmitting
	w.touched = time.Now()
	return w.gen, true
}

// finish records the outcome and returns the machine to idle.
func (w *workflow) finish(gen uint64, out Outcome) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
	w.touched = time.Now()
	if gen != w.gen {
		return false
	}
	w.last = &out
	return true
}

func (w *workflow) staleSince(cutoff time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateIdle && w.touched.Before(cutoff)
}

type PredictionService struct {
	backend PredictionBackend
	archive Archiver
	audit   audit.Publisher
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	flows map[string]*workflow
}

func NewPredictionService(b PredictionBackend, archive Archiver, publisher audit.Publisher, timeout time.Duration, log zerolog.Logger) *PredictionService {
	if publisher == nil {
		publisher = audit.Discard{}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PredictionService{
		backend: b,
		archive: archive,
		audit:   publisher,
		timeout: timeout,
		log:     log,
		flows:   make(map[string]*workflow),
	}
}

func (s *PredictionService) flow(sessionID string) *workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.flows[sessionID]
	if !ok {
		w = &workflow{state: StateIdle, touched: time.Now()}
		s.flows[sessionID] = w
	}
	return w
}

func (s *PredictionService) lookup(sessionID string) (*workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.flows[sessionID]
	return w, ok
}

// State reports whether a submission is running for the session.
func (s *PredictionService) State(sessionID string) WorkflowState {
	w, ok := s.lookup(sessionID)
	if !ok {
		return StateIdle
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Last is the most recent outcome for the session, if any.
func (s *PredictionService) Last(sessionID string) (Outcome, bool) {
	w, ok := s.lookup(sessionID)
	if !ok {
		return Outcome{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Outcome{}, false
	}
	return *w.last, true
}

// Dismiss forgets the stored outcome.
func (s *PredictionService) Dismiss(sessionID string) {
	w, ok := s.lookup(sessionID)
	if !ok {
		return
	}
	w.mu.Lock()
	w.last = nil
	w.gen++
	w.mu.Unlock()
}

// Forget drops all workflow state of a session.
func (s *PredictionService) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.flows, sessionID)
	s.mu.Unlock()
}

// Sweep drops idle workflows untouched since cutoff. Sessions that expire
// without a logout end up here.
func (s *PredictionService) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, w := range s.flows {
		if w.staleSince(cutoff) {
			delete(s.flows, id)
			removed++
		}
	}
	return removed
}

func (s *PredictionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

// Submit classifies buf, saves the result and reloads the history. The
// backend calls are detached from ctx: a client that goes away does not
// abort them and the outcome is kept for its next visit. onAccepted, if
// set, runs once the submission owns the workflow and before any backend
// call; a rejected submission never reaches it.
func (s *PredictionService) Submit(ctx context.Context, session models.ClientSession, buf *capture.Buffer, onAccepted func()) (Outcome, error) {
	if buf == nil || len(buf.Data) == 0 {
		return Outcome{}, ErrNoImage
	}
	w := s.flow(session.ID)
	gen, ok := w.begin()
	if !ok {
		return Outcome{}, ErrSubmissionInFlight
	}
	if onAccepted != nil {
		onAccepted()
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	out := s.run(work, session, buf)
	out.CompletedAt = time.Now().UTC()
	if !w.finish(gen, out) {
		s.log.Debug().Str("session_id", session.ID).Msg("outcome dropped after reset")
	}
	return out, nil
}

func (s *PredictionService) run(ctx context.Context, session models.ClientSession, buf *capture.Buffer) Outcome {
	out := Outcome{Source: buf.Source}
	logger := s.log.With().Str("session_id", session.ID).Str("buffer_id", buf.ID).Logger()

	archived := s.startArchive(ctx, session, buf)

	cls, err := s.backend.UploadImage(ctx, session.Token, buf.Filename, buf.Media.MIME, buf.Data)
	if err == nil {
		var p models.Prediction
		p, err = toPrediction(cls, session.UserID)
		if err == nil {
			out.Prediction = &p
		}
	}

	if err != nil {
		out.State = StateFailed
		out.ClassifyError = fmt.Errorf("%w: %w", ErrClassification, err)
		logger.Warn().Err(err).Msg("classification failed")
		s.emit(ctx, models.AuditError, "prediction.classify_failed", err.Error(), session.UserID)
	} else {
		s.emit(ctx, models.AuditInfo, "prediction.classified",
			fmt.Sprintf("%s %s%%", out.Prediction.Label, out.Prediction.ConfidenceText()), session.UserID)

		if err := s.persist(ctx, session.Token, *out.Prediction); err != nil {
			out.State = StateFailed
			out.PersistError = fmt.Errorf("%w: %w", ErrPersistence, err)
			logger.Warn().Err(err).Msg("save prediction failed")
			s.emit(ctx, models.AuditWarn, "prediction.persist_failed", err.Error(), session.UserID)
		} else {
			out.State = StateSucceeded
		}
	}

	out.History, out.HistoryError = s.History(ctx, session)
	if out.HistoryError != nil {
		logger.Warn().Err(out.HistoryError).Msg("history refresh failed")
	}

	out.ArchiveKey = <-archived
	return out
}

func (s *PredictionService) persist(ctx context.Context, token string, p models.Prediction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.backend.SavePrediction(ctx, token, p)
}

// History fetches the session's records newest first.
func (s *PredictionService) History(ctx context.Context, session models.ClientSession) ([]models.Prediction, error) {
	records, err := s.backend.ListPredictions(ctx, session.Token)
	if err != nil {
		return nil, err
	}
	return history.Order(records), nil
}

// startArchive uploads buf alongside the classification call. The
// returned channel yields the object key, empty when archiving is off or
// failed.
func (s *PredictionService) startArchive(ctx context.Context, session models.ClientSession, buf *capture.Buffer) <-chan string {
	done := make(chan string, 1)
	if s.archive == nil {
		done <- ""
		return done
	}
	go func() {
		key, err := s.archive.PutCapture(ctx, buf.Data, buf.Media.MIME, buf.Media.Extension(), map[string]string{
			"source":   string(buf.Source),
			"user-id":  session.UserID,
			"filename": buf.Filename,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("buffer_id", buf.ID).Msg("archive capture failed")
			key = ""
		}
		done <- key
	}()
	return done
}

func (s *PredictionService) emit(ctx context.Context, level models.AuditLevel, action, message, userID string) {
	err := s.audit.Publish(ctx, models.AuditEvent{
		Level:      level,
		Action:     action,
		Message:    message,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit publish failed")
	}
}

// toPrediction validates the classifier's answer and builds the record
// to save.
func toPrediction(cls backend.Classification, userID string) (models.Prediction, error) {
	label, err := models.ParseLabel(cls.Label)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %w", backend.ErrUnexpectedPayload, err)
	}
	if cls.Confidence == nil {
		return models.Prediction{}, fmt.Errorf("%w: confidence missing", backend.ErrUnexpectedPayload)
	}
	confidence := *cls.Confidence
	if confidence < 0 || confidence > 100 {
		return models.Prediction{}, fmt.Errorf("%w: %w", backend.ErrUnexpectedPayload, models.ErrConfidenceRange)
	}
	if cls.Filename == "" {
		return models.Prediction{}, fmt.Errorf("%w: filename missing", backend.ErrUnexpectedPayload)
	}
	return models.Prediction{
		Label:      label,
		Confidence: confidence,
		ImagePath:  "image/" + cls.Filename,
		UserID:     models.OwnerID(userID),
	}, nil
}

// Message is the user-facing text for a workflow error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if detail := backend.DetailOf(err); detail != "" {
		switch {
		case errors.Is(err, ErrPersistence):
			return "could not save the prediction: " + detail
		case errors.Is(err, ErrClassification):
			return "prediction failed: " + detail
		}
	}
	switch {
	case errors.Is(err, backend.ErrTransport):
		return MsgNetwork
	case errors.Is(err, ErrPersistence):
		return "could not save the prediction"
	case errors.Is(err, ErrClassification):
		return "prediction failed"
	}
	return err.Error()
}
