package imgproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliolab/labassist/internal/models"
)

// testImage builds a w×h image with a distinct top-left pixel so rotations
// are observable.
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	data, err := EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestApplyRotationZeroDegreesReturnsInputUntouched(t *testing.T) {
	data := testImage(t, 40, 20)

	out, mime, err := ApplyRotation(data, "image/jpeg", 0, true)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	// same backing bytes, no re-encode
	assert.Same(t, &data[0], &out[0])
}

func TestApplyRotationSwapsDimensionsFor90And270(t *testing.T) {
	data := testImage(t, 40, 20)

	for _, degrees := range []int{90, 270} {
		out, mime, err := ApplyRotation(data, "image/png", degrees, true)
		require.NoError(t, err)
		assert.Equal(t, MIMEPNG, mime)

		size, err := Dimensions(out)
		require.NoError(t, err)
		assert.Equal(t, models.Size{Width: 20, Height: 40}, size, "degrees=%d", degrees)
	}
}

func TestApplyRotation180KeepsDimensions(t *testing.T) {
	data := testImage(t, 40, 20)

	out, _, err := ApplyRotation(data, "image/png", 180, true)
	require.NoError(t, err)

	size, err := Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, models.Size{Width: 40, Height: 20}, size)
}

func TestApplyRotation90MovesTopLeftToTopRight(t *testing.T) {
	data := testImage(t, 4, 4)

	out, _, err := ApplyRotation(data, "image/png", 90, true)
	require.NoError(t, err)

	img, err := Decode(out)
	require.NoError(t, err)
	r, _, _, _ := img.At(3, 0).RGBA()
	assert.NotZero(t, r, "clockwise 90 puts the marked pixel in the top-right corner")
}

func TestApplyRotationRoundTripRestoresDimensions(t *testing.T) {
	data := testImage(t, 30, 50)

	for _, degrees := range models.ValidRotations {
		forward, mime, err := ApplyRotation(data, "image/png", degrees, true)
		require.NoError(t, err)
		back, _, err := ApplyRotation(forward, mime, (360-degrees)%360, true)
		require.NoError(t, err)

		size, err := Dimensions(back)
		require.NoError(t, err)
		assert.Equal(t, models.Size{Width: 30, Height: 50}, size, "degrees=%d", degrees)
	}
}

func TestApplyRotationRejectsInvalidDegrees(t *testing.T) {
	data := testImage(t, 10, 10)

	_, _, err := ApplyRotation(data, "image/png", 45, true)
	assert.Error(t, err)
}

func TestApplyRotationLossyKeepsInputFormat(t *testing.T) {
	data := testImage(t, 10, 10)

	_, mime, err := ApplyRotation(data, "image/jpeg", 90, false)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
}

func TestApplyRotationFailsOnGarbageBytes(t *testing.T) {
	_, _, err := ApplyRotation([]byte("not an image"), "image/png", 90, true)
	assert.Error(t, err)
}

func TestCropWithPaddingClampsToImageBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))

	// box near the edge: padding would spill past (0,0)
	out := CropWithPadding(img, models.BoundingBox{X: 5, Y: 5, Width: 30, Height: 20}, 10)
	b := out.Bounds()
	assert.Equal(t, 45, b.Dx()) // 0..45: left clamped at 0, right padded to 45
	assert.Equal(t, 35, b.Dy())
}

func TestCropWithPaddingInsideBoundsExpandsBothSides(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))

	out := CropWithPadding(img, models.BoundingBox{X: 30, Y: 30, Width: 20, Height: 20}, 5)
	b := out.Bounds()
	assert.Equal(t, 30, b.Dx())
	assert.Equal(t, 30, b.Dy())
}

func TestDimensionsDoesNotRequireFullDecode(t *testing.T) {
	data := testImage(t, 123, 45)

	size, err := Dimensions(data)
	require.NoError(t, err)
	assert.Equal(t, models.Size{Width: 123, Height: 45}, size)
}
