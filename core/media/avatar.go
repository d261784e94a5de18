package media

import (
	"bytes"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	AvatarSize        = 256
	AvatarContentType = "image/png"
	AvatarExt         = ".png"
)

var ErrUnsupportedImage = errors.New("unsupported image format")

// PrepareAvatar decodes a gif, jpeg or png picture and returns it cropped to a centered
// AvatarSize square, encoded as PNG. EXIF orientation is honoured.
func PrepareAvatar(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, errors.Wrap(err, "decoding avatar")
	}

	thumb := imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, errors.Wrap(err, "encoding avatar")
	}
	return buf.Bytes(), nil
}
