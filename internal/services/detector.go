package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heliolab/labassist/internal/models"
	"github.com/heliolab/labassist/internal/providers/vision"
)

// rotationPrompt forces a one-token answer. Text orientation is the primary
// signal; scene cues are the fallback for forms with no legible writing.
const rotationPrompt = `Look at this photograph of a paper form. Determine how many degrees the image must be rotated clockwise so that the text reads left to right, top to bottom.

Use the orientation of the text (printed or handwritten) as the primary signal. If no text is legible, use natural cues: sky or ceiling up, table or floor down.

Respond with exactly one of these values and nothing else: 0, 90, 180, 270`

// RotationDetector classifies the rotation an uploaded photograph needs.
// It walks the candidate models in order and the first syntactically valid
// answer wins; no cross-model agreement is checked. That is deliberate:
// an occasional wrong single-model answer costs less than tripling the
// inference spend on every upload.
type RotationDetector interface {
	Detect(ctx context.Context, asset models.ImageAsset, candidates []string) *models.RotationResult
}

type rotationDetector struct {
	provider    vision.Provider // nil when no credential is configured
	log         *logrus.Logger
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

func NewRotationDetector(provider vision.Provider, log *logrus.Logger, timeout time.Duration, maxTokens int, temperature float64) RotationDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 10
	}
	return &rotationDetector{
		provider:    provider,
		log:         log,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Detect never fails: when every candidate errors or answers nonsense, the
// result is {0, success=false}. Defaulting to "no rotation" is required —
// a wrong forced rotation is worse than a no-op.
func (d *rotationDetector) Detect(ctx context.Context, asset models.ImageAsset, candidates []string) *models.RotationResult {
	const op = "RotationDetector.Detect"
	start := time.Now()

	failed := &models.RotationResult{
		SourceAssetID:   asset.ID,
		RotationDegrees: 0,
		Success:         false,
	}

	if d.provider == nil {
		d.log.WithFields(logrus.Fields{"op": op, "asset_id": asset.ID}).
			Warn("no vision provider configured, skipping rotation detection")
		failed.TimingMS = time.Since(start).Milliseconds()
		return failed
	}

	for _, model := range candidates {
		entry := d.log.WithFields(logrus.Fields{
			"op":       op,
			"asset_id": asset.ID,
			"model":    model,
		})

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		text, err := d.provider.Generate(callCtx, vision.Request{
			Prompt:      rotationPrompt,
			Image:       asset.Data,
			MIMEType:    asset.MIMEType,
			Model:       model,
			Temperature: d.temperature,
			MaxTokens:   d.maxTokens,
		})
		cancel()

		if err != nil {
			entry.WithError(err).Warn("rotation inference failed, trying next model")
			continue
		}

		degrees, ok := parseRotation(text)
		if !ok {
			entry.WithField("answer", truncate(text, 80)).
				Warn("invalid rotation answer, trying next model")
			continue
		}

		result := &models.RotationResult{
			SourceAssetID:   asset.ID,
			RotationDegrees: degrees,
			DetectedBy:      model,
			Success:         true,
			TimingMS:        time.Since(start).Milliseconds(),
		}
		entry.WithFields(logrus.Fields{
			"degrees":   degrees,
			"timing_ms": result.TimingMS,
		}).Info("rotation detected")
		return result
	}

	failed.TimingMS = time.Since(start).Milliseconds()
	d.log.WithFields(logrus.Fields{
		"op":        op,
		"asset_id":  asset.ID,
		"attempts":  len(candidates),
		"timing_ms": failed.TimingMS,
	}).Warn("all rotation candidates exhausted, defaulting to 0")
	return failed
}

// parseRotation strips everything but digits and validates membership in
// {0,90,180,270}. "90°" and "rotate 90" parse; "ninety" does not.
func parseRotation(answer string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, answer)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || !models.IsValidRotation(n) {
		return 0, false
	}
	return n, true
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
