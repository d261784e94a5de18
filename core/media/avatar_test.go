package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareAvatar(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for x := 0; x < 640; x++ {
		for y := 0; y < 480; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(buf *bytes.Buffer) error { return png.Encode(buf, src) },
		"jpeg": func(buf *bytes.Buffer) error { return jpeg.Encode(buf, src, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf))

			data, err := PrepareAvatar(&buf)
			require.NoError(t, err)

			img, format, err := image.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, AvatarSize, img.Bounds().Dx())
			assert.Equal(t, AvatarSize, img.Bounds().Dy())
		})
	}

	t.Run("not an image", func(t *testing.T) {
		_, err := PrepareAvatar(strings.NewReader("definitely not a picture"))
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})
}
