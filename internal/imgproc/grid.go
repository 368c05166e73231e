package imgproc

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/heliolab/labassist/internal/models"
)

const gridSide = 3

// GridLabels are the fixed positional captions for the nine tiles, in
// reading order. The consuming vision model refers to tiles by these names.
var GridLabels = [models.GridCells]string{
	"top-left", "top-center", "top-right",
	"middle-left", "middle-center", "middle-right",
	"bottom-left", "bottom-center", "bottom-right",
}

// GridRects computes the nine source rectangles for a width×height image.
// The base cells use integer boundaries i*w/3 so their union tiles the image
// exactly with no gaps; each cell is then extended by the overlap fraction of
// its own size on every edge and clamped to the image bounds, so handwriting
// straddling a cell boundary appears whole in at least one tile and no
// overlap is added past the image edge.
func GridRects(width, height int, overlap float64) [models.GridCells]image.Rectangle {
	var rects [models.GridCells]image.Rectangle
	if overlap < 0 {
		overlap = 0
	}
	for row := 0; row < gridSide; row++ {
		for col := 0; col < gridSide; col++ {
			x0 := col * width / gridSide
			x1 := (col + 1) * width / gridSide
			y0 := row * height / gridSide
			y1 := (row + 1) * height / gridSide

			padX := int(float64(x1-x0) * overlap)
			padY := int(float64(y1-y0) * overlap)

			r := image.Rect(x0-padX, y0-padY, x1+padX, y1+padY).
				Intersect(image.Rect(0, 0, width, height))
			rects[row*gridSide+col] = r
		}
	}
	return rects
}

// GridResult is the outcome of grid segmentation: the untouched full image
// plus nine overlapping tiles with their positional labels.
type GridResult struct {
	Full     models.ImageAsset
	Segments []models.ImageAsset
	Labels   []string
}

// SegmentGrid splits one image into the 3×3 overlapping tile set. Tile ids
// derive from the source asset id so the tiles share its lifecycle.
func SegmentGrid(asset models.ImageAsset, overlap float64, lossless bool) (*GridResult, error) {
	img, err := Decode(asset.Data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	outMIME := asset.MIMEType
	if lossless {
		outMIME = MIMEPNG
	}

	res := &GridResult{
		Full:     asset,
		Segments: make([]models.ImageAsset, 0, models.GridCells),
		Labels:   make([]string, 0, models.GridCells),
	}
	for i, r := range GridRects(b.Dx(), b.Dy(), overlap) {
		tile := imaging.Crop(img, r.Add(b.Min))
		data, err := Encode(tile, outMIME)
		if err != nil {
			return nil, fmt.Errorf("encode tile %s: %w", GridLabels[i], err)
		}
		res.Segments = append(res.Segments, models.ImageAsset{
			ID:       fmt.Sprintf("%s#%s", asset.ID, GridLabels[i]),
			MIMEType: outMIME,
			Data:     data,
		})
		res.Labels = append(res.Labels, GridLabels[i])
	}
	return res, nil
}
