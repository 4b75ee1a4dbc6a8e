package capture

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"pubdetect/internal/media/sniffer"
)

type Source string

const (
	SourceUpload Source = "upload"
	SourceWebcam Source = "webcam"
)

// Buffer is one captured image waiting to be classified.
type Buffer struct {
	ID        string
	Filename  string
	Media     sniffer.Result
	Data      []byte
	Source    Source
	CreatedAt time.Time

	previewDone chan struct{}
	previewURL  string
	previewErr  error
}

func newBuffer(id, filename string, media sniffer.Result, data []byte, source Source) *Buffer {
	return &Buffer{
		ID:          id,
		Filename:    filename,
		Media:       media,
		Data:        data,
		Source:      source,
		CreatedAt:   time.Now().UTC(),
		previewDone: make(chan struct{}),
	}
}

// DataURL inlines the full image.
func (b *Buffer) DataURL() string {
	return "data:" + b.Media.MIME + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// WaitPreview blocks until the preview is ready or ctx ends.
func (b *Buffer) WaitPreview(ctx context.Context) (string, error) {
	select {
	case <-b.previewDone:
		return b.previewURL, b.previewErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PreviewReady reports the preview without blocking.
func (b *Buffer) PreviewReady() (string, bool) {
	select {
	case <-b.previewDone:
		if b.previewErr != nil {
			return "", false
		}
		return b.previewURL, true
	default:
		return "", false
	}
}

func (b *Buffer) finishPreview(url string, err error) {
	b.previewURL = url
	b.previewErr = err
	close(b.previewDone)
}

// Buffers holds at most one pending buffer per client.
type Buffers struct {
	mu      sync.Mutex
	pending map[string]*Buffer
}

func NewBuffers() *Buffers {
	return &Buffers{pending: make(map[string]*Buffer)}
}

// Put replaces whatever the client had pending.
func (r *Buffers) Put(clientID string, buf *Buffer) {
	r.mu.Lock()
	r.pending[clientID] = buf
	r.mu.Unlock()
}

func (r *Buffers) Get(clientID string) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.pending[clientID]
	return buf, ok
}

// ResetSource drops the client's buffer only if it came from source.
func (r *Buffers) ResetSource(clientID string, source Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.pending[clientID]
	if !ok || buf.Source != source {
		return false
	}
	delete(r.pending, clientID)
	return true
}

func (r *Buffers) Reset(clientID string) {
	r.mu.Lock()
	delete(r.pending, clientID)
	r.mu.Unlock()
}

// Sweep drops buffers created before cutoff and returns how many went.
func (r *Buffers) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, buf := range r.pending {
		if buf.CreatedAt.Before(cutoff) {
			delete(r.pending, id)
			removed++
		}
	}
	return removed
}

func (r *Buffers) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
