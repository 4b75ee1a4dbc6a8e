package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectClassifiable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want MediaType
		ext  string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG, "jpg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, TypePNG, "png"},
		{"gif", []byte("GIF89a....."), TypeGIF, "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DetectClassifiable(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Type)
			assert.Equal(t, tt.ext, res.Extension())
		})
	}
}

func TestDetectClassifiableRejectsNonImages(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("%PDF-1.7"), []byte("<svg xmlns='x'/>"), []byte("hello world"), []byte("BM\x00\x00\x00\x00\x00\x00\x00\x00\x36\x00\x00\x00")} {
		_, err := DetectClassifiable(data)
		assert.ErrorIs(t, err, ErrUnknownType, string(data))
	}
}
