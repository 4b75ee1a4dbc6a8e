// Package capture turns uploads and webcam frames into image buffers.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"pubdetect/internal/ids"
	"pubdetect/internal/media/sniffer"
)

var (
	ErrNoFile   = errors.New("no image provided")
	ErrNotImage = errors.New("file is not a supported image")
	ErrTooLarge = errors.New("image exceeds the size limit")
)

// FileFields are the multipart fields searched for an image, in order.
var FileFields = []string{"file", "image"}

const DefaultMaxBytes = 5 << 20

// ImageHandler receives every accepted buffer.
type ImageHandler func(ctx context.Context, buf *Buffer) error

type Options struct {
	MaxBytes     int64
	PreviewWidth uint
}

type Widget struct {
	opts    Options
	onImage ImageHandler
}

func NewWidget(opts Options, onImage ImageHandler) *Widget {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Widget{opts: opts, onImage: onImage}
}

// FromForm accepts the first file of the first non-empty file field.
func (w *Widget) FromForm(ctx context.Context, form *multipart.Form) (*Buffer, error) {
	header := firstFile(form)
	if header == nil {
		return nil, ErrNoFile
	}
	if header.Size > w.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, w.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return w.accept(ctx, header.Filename, data, SourceUpload)
}

// FromFrame accepts a canvas frame encoded as a base64 data URL.
func (w *Widget) FromFrame(ctx context.Context, dataURL string) (*Buffer, error) {
	data, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return w.accept(ctx, "", data, SourceWebcam)
}

func (w *Widget) accept(ctx context.Context, filename string, data []byte, source Source) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if int64(len(data)) > w.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	media, err := sniffer.DetectClassifiable(data)
	if err != nil {
		return nil, ErrNotImage
	}

	id := ids.New()
	buf := newBuffer(id, normalizeFilename(filename, source, id, media), media, data, source)
	startPreview(buf, w.opts.PreviewWidth)

	if w.onImage != nil {
		if err := w.onImage(ctx, buf); err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func firstFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, field := range FileFields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

// normalizeFilename keeps the base name of an upload and gives frames a
// synthetic one. The extension always matches the sniffed type.
func normalizeFilename(name string, source Source, id string, media sniffer.Result) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = string(source) + "-" + id
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		stem = string(source) + "-" + id
	}
	return stem + "." + media.Extension()
}

// DecodeDataURL extracts the bytes of a base64 "data:" URL. A bare base64
// string is accepted too.
func DecodeDataURL(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoFile
	}
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.HasSuffix(raw[:comma], ";base64") {
			return nil, ErrNotImage
		}
		payload = raw[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrNotImage
	}
	return data, nil
}
