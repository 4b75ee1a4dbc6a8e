package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pubdetect/internal/capture"
	"pubdetect/internal/gauge"
	"pubdetect/internal/service"
	"pubdetect/internal/theme"
	"pubdetect/internal/views"
)

const (
	streamReadWait  = 60 * time.Second
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
)

// Messages sent by the webcam page.
const (
	msgGranted = "granted"
	msgDenied  = "denied"
	msgFrame   = "frame"
	msgCapture = "capture"
	msgReset   = "reset"
	msgRetry   = "retry"
)

type inboundMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type streamResult struct {
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	Gauge      string  `json:"gauge,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type outboundMessage struct {
	Type   string              `json:"type"`
	State  capture.CameraState `json:"state,omitempty"`
	Error  string              `json:"error,omitempty"`
	Theme  theme.Theme         `json:"theme,omitempty"`
	Result *streamResult       `json:"result,omitempty"`
}

func (h *HandlerSet) WebcamPage(c *gin.Context) {
	c.HTML(http.StatusOK, "webcam.html", views.WebcamPage{
		Page:       h.basePage(c, "Webcam"),
		StreamPath: webcamStream,
	})
}

// WebcamStream mirrors one page's camera. The page owns the media tracks
// and stops them when told to release, which is always the last message.
func (h *HandlerSet) WebcamStream(c *gin.Context) {
	s := session(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := h.Log.With().Str("session_id", s.ID).Logger()
	stream := newCameraStream(conn, logger)
	owner := *s
	widget := capture.NewWidget(h.captureOptions(), func(ctx context.Context, buf *capture.Buffer) error {
		out, err := h.Predictions.Submit(ctx, owner, buf, func() {
			h.Buffers.Put(owner.ID, buf)
			stream.send(outboundMessage{Type: "state", State: capture.CameraCaptured})
		})
		if err != nil {
			return err
		}
		stream.send(outboundMessage{Type: "result", Result: resultOf(out)})
		return nil
	})
	stream.camera = capture.NewCameraSession(widget)

	if previous := h.streams.attach(s.ID, stream); previous != nil {
		previous.release()
	}
	defer func() {
		h.streams.detach(s.ID, stream)
		stream.release()
		h.Buffers.ResetSource(s.ID, capture.SourceWebcam)
		logger.Debug().Msg("webcam stream closed")
	}()

	unsubscribe := h.Themes.For(s.ID).Subscribe(func(t theme.Theme) {
		stream.send(outboundMessage{Type: "theme", Theme: t})
	})
	defer unsubscribe()

	conn.SetReadLimit(h.maxUploadBytes()*2 + 1024)
	_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadWait))
	})
	go stream.pingLoop()

	stream.sendState(nil)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("webcam read ended")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			stream.sendState(errors.New("malformed message"))
			continue
		}
		if !h.handleCameraMessage(stream, msg) {
			return
		}
	}
}

// handleCameraMessage applies one page message. It reports false once
// the camera is released.
func (h *HandlerSet) handleCameraMessage(stream *cameraStream, msg inboundMessage) bool {
	camera := stream.camera
	var err error
	switch msg.Type {
	case msgGranted:
		err = camera.Granted()
	case msgDenied:
		err = camera.Denied()
	case msgRetry:
		err = camera.Retry()
	case msgFrame:
		// Frames are not echoed back.
		if err = camera.Frame(msg.Data); err == nil {
			return true
		}
	case msgReset:
		err = camera.Reset()
	case msgCapture:
		go stream.capture()
		return true
	default:
		err = errors.New("unknown message type " + msg.Type)
	}
	if errors.Is(err, capture.ErrCameraReleased) {
		return false
	}
	stream.sendState(err)
	return true
}

type cameraStream struct {
	conn   *websocket.Conn
	camera *capture.CameraSession
	log    zerolog.Logger

	mu       sync.Mutex
	released bool
	done     chan struct{}
}

func newCameraStream(conn *websocket.Conn, log zerolog.Logger) *cameraStream {
	return &cameraStream{conn: conn, log: log, done: make(chan struct{})}
}

// capture runs off the read loop because it waits on the backend.
func (s *cameraStream) capture() {
	buf, err := s.camera.Capture(context.Background())
	switch {
	case err == nil:
	case buf == nil:
		s.sendState(err)
	default:
		s.send(outboundMessage{Type: "result", Result: &streamResult{Error: service.Message(err)}})
	}
}

func (s *cameraStream) sendState(err error) {
	msg := outboundMessage{Type: "state", State: s.camera.State()}
	if err != nil {
		msg.Error = err.Error()
	}
	s.send(msg)
}

// send drops messages once the stream is released.
func (s *cameraStream) send(msg outboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.writeLocked(msg)
}

func (s *cameraStream) writeLocked(msg outboundMessage) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Debug().Err(err).Str("type", msg.Type).Msg("webcam write failed")
	}
}

// release tells the page to stop its tracks and closes the socket. It is
// idempotent.
func (s *cameraStream) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	if s.camera != nil {
		s.camera.Release()
	}
	s.writeLocked(outboundMessage{Type: "release", State: capture.CameraReleased})
	s.released = true
	close(s.done)
	_ = s.conn.Close()
}

func (s *cameraStream) pingLoop() {
	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.released {
				s.mu.Unlock()
				return
			}
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// streamRegistry holds at most one camera stream per session.
type streamRegistry struct {
	mu      sync.Mutex
	streams map[string]*cameraStream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string]*cameraStream)}
}

// attach installs stream and returns the one it replaced.
func (r *streamRegistry) attach(sessionID string, stream *cameraStream) *cameraStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.streams[sessionID]
	r.streams[sessionID] = stream
	return previous
}

func (r *streamRegistry) detach(sessionID string, stream *cameraStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streams[sessionID] == stream {
		delete(r.streams, sessionID)
	}
}

// close releases the session's stream, if any.
func (r *streamRegistry) close(sessionID string) {
	r.mu.Lock()
	stream := r.streams[sessionID]
	delete(r.streams, sessionID)
	r.mu.Unlock()
	if stream != nil {
		stream.release()
	}
}

func resultOf(out service.Outcome) *streamResult {
	res := &streamResult{}
	if out.Prediction != nil {
		res.Label = string(out.Prediction.Label)
		res.Confidence = out.Prediction.Confidence
		res.Gauge = gauge.New(out.Prediction.Confidence, res.Label, gauge.Options{}).SVG()
		res.Error = service.Message(out.PersistError)
	} else {
		res.Error = service.Message(out.ClassifyError)
	}
	return res
}
