package capture

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubdetect/internal/media/sniffer"
)

func pngResult() sniffer.Result {
	return sniffer.Result{Type: sniffer.TypePNG, MIME: "image/png"}
}

func TestCameraHappyPath(t *testing.T) {
	w, calls := countingWidget(Options{})
	cam := NewCameraSession(w)
	assert.Equal(t, CameraRequesting, cam.State())

	require.NoError(t, cam.Granted())
	assert.Equal(t, CameraStreaming, cam.State())

	_, err := cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	frame := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 4, 4))
	require.NoError(t, cam.Frame(frame))

	buf, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CameraCaptured, cam.State())
	assert.Equal(t, SourceWebcam, buf.Source)
	assert.Same(t, buf, cam.Captured())
	assert.Len(t, *calls, 1)

	require.NoError(t, cam.Frame(frame))
	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCameraOp)
	assert.Len(t, *calls, 1)

	require.NoError(t, cam.Reset())
	assert.Equal(t, CameraStreaming, cam.State())
	assert.Nil(t, cam.Captured())
}

func TestCameraDeniedThenRetry(t *testing.T) {
	w, _ := countingWidget(Options{})
	cam := NewCameraSession(w)

	assert.ErrorIs(t, cam.Denied(), ErrCameraDenied)
	assert.Equal(t, CameraDenied, cam.State())
	assert.ErrorIs(t, cam.Granted(), ErrInvalidCameraOp)

	require.NoError(t, cam.Retry())
	assert.Equal(t, CameraRequesting, cam.State())
	require.NoError(t, cam.Granted())
}

func TestCameraBadFrameKeepsStreaming(t *testing.T) {
	w, calls := countingWidget(Options{})
	cam := NewCameraSession(w)
	require.NoError(t, cam.Granted())
	require.NoError(t, cam.Frame("data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("not an image"))))

	_, err := cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotImage)
	assert.Equal(t, CameraStreaming, cam.State())
	assert.Empty(t, *calls)
}

func TestCameraReleaseIsTerminal(t *testing.T) {
	w, _ := countingWidget(Options{})
	cam := NewCameraSession(w)
	require.NoError(t, cam.Granted())

	cam.Release()
	cam.Release()
	assert.Equal(t, CameraReleased, cam.State())
	assert.ErrorIs(t, cam.Frame("x"), ErrCameraReleased)
	assert.ErrorIs(t, cam.Retry(), ErrCameraReleased)
	assert.ErrorIs(t, cam.Reset(), ErrCameraReleased)
	_, err := cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrCameraReleased)
}
