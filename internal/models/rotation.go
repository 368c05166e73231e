package models

// ValidRotations are the only angles the detector may report: the clockwise
// rotation needed to make text read left-to-right, top-to-bottom.
var ValidRotations = [4]int{0, 90, 180, 270}

func IsValidRotation(degrees int) bool {
	for _, d := range ValidRotations {
		if d == degrees {
			return true
		}
	}
	return false
}

// RotationResult is produced once per asset by the rotation detector and
// cached by asset id. A retry produces a new result that replaces the cache
// entry; the struct itself is never mutated.
type RotationResult struct {
	SourceAssetID   string `json:"source_asset_id"`
	RotationDegrees int    `json:"rotation_degrees"`
	DetectedBy      string `json:"detected_by,omitempty"` // model id, empty when no model answered
	Success         bool   `json:"success"`
	TimingMS        int64  `json:"timing_ms"`
}
