package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type CameraState string

const (
	CameraRequesting CameraState = "requesting"
	CameraStreaming  CameraState = "streaming"
	CameraDenied     CameraState = "denied"
	CameraCaptured   CameraState = "captured"
	CameraReleased   CameraState = "released"
)

var (
	ErrCameraDenied    = errors.New("camera access denied")
	ErrCameraReleased  = errors.New("camera released")
	ErrNoFrame         = errors.New("no frame received yet")
	ErrInvalidCameraOp = errors.New("operation not allowed in current camera state")
)

// CameraSession tracks one page's camera. The page owns the media
// tracks; the session only mirrors what it reported and holds the most
// recent frame.
type CameraSession struct {
	widget *Widget

	mu        sync.Mutex
	state     CameraState
	lastFrame string
	captured  *Buffer
}

func NewCameraSession(widget *Widget) *CameraSession {
	return &CameraSession{widget: widget, state: CameraRequesting}
}

func (s *CameraSession) State() CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Captured is the frozen frame, if any.
func (s *CameraSession) Captured() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

func (s *CameraSession) Granted() error {
	return s.transition(CameraStreaming, CameraRequesting)
}

// Denied moves to denied and returns ErrCameraDenied for the caller to
// surface.
func (s *CameraSession) Denied() error {
	if err := s.transition(CameraDenied, CameraRequesting, CameraStreaming); err != nil {
		return err
	}
	return ErrCameraDenied
}

func (s *CameraSession) Retry() error {
	return s.transition(CameraRequesting, CameraDenied)
}

// Frame records the latest live frame. Frames arriving after a capture
// are ignored until Reset.
func (s *CameraSession) Frame(dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case CameraStreaming:
		s.lastFrame = dataURL
		return nil
	case CameraCaptured:
		return nil
	case CameraReleased:
		return ErrCameraReleased
	}
	return fmt.Errorf("%w: frame while %s", ErrInvalidCameraOp, s.state)
}

// Capture freezes the latest frame and hands it to the widget, which
// fires its callback once.
func (s *CameraSession) Capture(ctx context.Context) (*Buffer, error) {
	s.mu.Lock()
	if s.state != CameraStreaming {
		state := s.state
		s.mu.Unlock()
		if state == CameraReleased {
			return nil, ErrCameraReleased
		}
		return nil, fmt.Errorf("%w: capture while %s", ErrInvalidCameraOp, state)
	}
	if s.lastFrame == "" {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	frame := s.lastFrame
	s.state = CameraCaptured
	s.mu.Unlock()

	buf, err := s.widget.FromFrame(ctx, frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	if buf == nil {
		if s.state == CameraCaptured {
			s.state = CameraStreaming
		}
		return nil, err
	}
	s.captured = buf
	return buf, err
}

// Reset drops the frozen frame and resumes the live view.
func (s *CameraSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case CameraReleased:
		return ErrCameraReleased
	case CameraCaptured:
		s.state = CameraStreaming
	}
	s.captured = nil
	s.lastFrame = ""
	return nil
}

// Release is terminal and idempotent.
func (s *CameraSession) Release() {
	s.mu.Lock()
	s.state = CameraReleased
	s.captured = nil
	s.lastFrame = ""
	s.mu.Unlock()
}

func (s *CameraSession) transition(to CameraState, from ...CameraState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == CameraReleased {
		return ErrCameraReleased
	}
	for _, allowed := range from {
		if s.state == allowed {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidCameraOp, s.state, to)
}
