package imgproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/heliolab/labassist/internal/models"
)

// MIMEPNG is the output type of lossless encodes.
const MIMEPNG = "image/png"

// Decode parses image bytes into an in-memory image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes an image in the format implied by the MIME type. Unknown
// types encode as JPEG.
func Encode(img image.Image, mimeType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch mimeType {
	case "image/png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "image/gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
	case "image/bmp":
		err = imaging.Encode(&buf, img, imaging.BMP)
	case "image/tiff":
		err = imaging.Encode(&buf, img, imaging.TIFF)
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95))
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG writes an image losslessly. Re-compression artifacts visibly
// degrade vision-model accuracy on handwriting, so every rotation of a
// text-bearing document photograph goes through this path.
func EncodePNG(img image.Image) ([]byte, error) {
	return Encode(img, MIMEPNG)
}

// ApplyRotation rotates image bytes clockwise by one of {0,90,180,270}
// degrees and returns the rotated bytes plus their MIME type. degrees=0
// returns the input by reference, no copy. With lossless set, output is PNG
// regardless of the input format; otherwise the input format is kept.
//
// imaging's RotateN rotates counter-clockwise, so clockwise 90 maps to
// Rotate270 and vice versa.
func ApplyRotation(data []byte, mimeType string, degrees int, lossless bool) ([]byte, string, error) {
	if degrees == 0 {
		return data, mimeType, nil
	}
	if !models.IsValidRotation(degrees) {
		return nil, "", fmt.Errorf("invalid rotation: %d", degrees)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, "", err
	}

	var rotated image.Image
	switch degrees {
	case 90:
		rotated = imaging.Rotate270(img)
	case 180:
		rotated = imaging.Rotate180(img)
	case 270:
		rotated = imaging.Rotate90(img)
	}

	if lossless {
		out, err := EncodePNG(rotated)
		if err != nil {
			return nil, "", err
		}
		return out, MIMEPNG, nil
	}
	out, err := Encode(rotated, mimeType)
	if err != nil {
		return nil, "", err
	}
	return out, mimeType, nil
}

// CropWithPadding crops an image to the given box expanded by padding pixels
// on every side, clamped to the image bounds.
func CropWithPadding(img image.Image, box models.BoundingBox, padding int) image.Image {
	b := img.Bounds()
	rect := image.Rect(
		box.X-padding,
		box.Y-padding,
		box.X+box.Width+padding,
		box.Y+box.Height+padding,
	).Intersect(b)
	return imaging.Crop(img, rect)
}

// Dimensions returns width/height without keeping the decoded pixels around.
func Dimensions(data []byte) (models.Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.Size{}, fmt.Errorf("decode image config: %w", err)
	}
	return models.Size{Width: cfg.Width, Height: cfg.Height}, nil
}
