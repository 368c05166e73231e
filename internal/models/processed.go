package models

// BoundingBox is a pixel-space rectangle returned by the segmentation
// provider. X/Y is the top-left corner.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Size is a pixel width/height pair, reported for observability.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GridCells is the fixed tile count of the grid segmenter (3×3).
const GridCells = 9

// ProcessedImage is the terminal artifact of one asset's preprocessing
// pipeline, handed to the chat-send path. Derived assets (rotated, cropped,
// segments) are owned by this struct and share its cache lifetime.
type ProcessedImage struct {
	SourceAssetID   string `json:"source_asset_id"`
	RotationDegrees int    `json:"rotation_degrees"`
	DetectedBy      string `json:"detected_by,omitempty"`

	RotatedAsset *ImageAsset `json:"rotated_asset,omitempty"`
	CroppedAsset *ImageAsset `json:"cropped_asset,omitempty"`
	UsedCrop     bool        `json:"used_crop"`

	Segments      []ImageAsset `json:"segments,omitempty"` // 9 tiles when grid segmentation ran
	SegmentLabels []string     `json:"segment_labels,omitempty"`

	TimingMS int64  `json:"timing_ms"`
	Error    string `json:"error,omitempty"` // set on graceful degradation, never a raw provider error
}

// Best returns the most corrected single-image variant available: cropped,
// then rotated, then nil (caller falls back to the original upload).
func (p *ProcessedImage) Best() *ImageAsset {
	if p.UsedCrop && p.CroppedAsset != nil {
		return p.CroppedAsset
	}
	if p.RotatedAsset != nil {
		return p.RotatedAsset
	}
	return nil
}
