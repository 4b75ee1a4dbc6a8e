package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// renderPreview scales the image down to width px and encodes it as a
// JPEG data URL. Formats the image package cannot decode are inlined
// unscaled.
func renderPreview(buf *Buffer, width uint) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(buf.Data))
	if err != nil {
		return buf.DataURL(), nil
	}

	if width > 0 && uint(img.Bounds().Dx()) > width {
		img = resize.Resize(width, 0, img, resize.Bilinear)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

func startPreview(buf *Buffer, width uint) {
	go func() {
		url, err := renderPreview(buf, width)
		buf.finishPreview(url, err)
	}()
}
