package face

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// FrameWidth is the width frames are reduced to before detection.
const FrameWidth = 640

// NormalizeJPEG decodes a JPEG, PNG or WebP image and re-encodes it as JPEG,
// scaling it down to maxWidth when it is wider. maxWidth <= 0 keeps the size.
func NormalizeJPEG(data []byte, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		decoded, decodeErr := webp.Decode(bytes.NewReader(data))
		if decodeErr != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		img = decoded
	}

	bounds := img.Bounds()
	if maxWidth > 0 && bounds.Dx() > maxWidth {
		height := bounds.Dy() * maxWidth / bounds.Dx()
		if height < 1 {
			height = 1
		}
		resized := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Over, nil)
		img = resized
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}
