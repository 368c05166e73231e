package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heliolab/labassist/internal/imgproc"
	"github.com/heliolab/labassist/internal/models"
	"github.com/heliolab/labassist/internal/providers/segment"
)

// SegmentOutcome reports what the document segmenter did with one image.
// Segmented=false is a normal outcome, not a failure: tight crops and empty
// desks have no document to cut out.
type SegmentOutcome struct {
	Segmented    bool
	CroppedAsset *models.ImageAsset
	BoundingBox  *models.BoundingBox
	OriginalSize models.Size
	CroppedSize  models.Size
	Reason       string
	TimingMS     int64
}

// DocumentSegmenter isolates the paper document inside a desk photograph so
// downstream OCR is not distracted by keyboards and coffee mugs.
type DocumentSegmenter interface {
	// Segment never returns an error; provider failures degrade to a
	// not-segmented outcome with the reason recorded.
	Segment(ctx context.Context, asset models.ImageAsset) *SegmentOutcome
}

type documentSegmenter struct {
	provider segment.Provider // nil when the feature is not configured
	log      *logrus.Logger
	prompt   string
	padding  int
}

func NewDocumentSegmenter(provider segment.Provider, log *logrus.Logger, prompt string, padding int) DocumentSegmenter {
	if prompt == "" {
		prompt = "document"
	}
	if padding < 0 {
		padding = 0
	}
	return &documentSegmenter{
		provider: provider,
		log:      log,
		prompt:   prompt,
		padding:  padding,
	}
}

func (s *documentSegmenter) Segment(ctx context.Context, asset models.ImageAsset) *SegmentOutcome {
	const op = "DocumentSegmenter.Segment"
	start := time.Now()

	out := &SegmentOutcome{}
	defer func() { out.TimingMS = time.Since(start).Milliseconds() }()

	if s.provider == nil {
		out.Reason = "segmentation provider not configured"
		return out
	}

	entry := s.log.WithFields(logrus.Fields{"op": op, "asset_id": asset.ID})

	if size, err := imgproc.Dimensions(asset.Data); err == nil {
		out.OriginalSize = size
	}

	res, err := s.provider.Segment(ctx, segment.Request{
		Image:    asset.Data,
		MIMEType: asset.MIMEType,
		Prompt:   s.prompt,
		Padding:  s.padding,
	})
	if err != nil {
		entry.WithError(err).Warn("segmentation failed, keeping full image")
		out.Reason = "segmentation provider error"
		return out
	}
	if !res.Segmented {
		out.Reason = res.Reason
		entry.WithField("reason", res.Reason).Info("no document found")
		return out
	}

	cropped, size, err := s.cropFrom(asset, res)
	if err != nil {
		entry.WithError(err).Warn("crop failed, keeping full image")
		out.Reason = "crop failed"
		return out
	}

	out.Segmented = true
	out.CroppedAsset = cropped
	out.BoundingBox = res.BoundingBox
	out.CroppedSize = size
	entry.WithFields(logrus.Fields{
		"original": out.OriginalSize,
		"cropped":  out.CroppedSize,
	}).Info("document cropped")
	return out
}

// cropFrom prefers cropping locally from the bounding box; a server-side
// cropped image is the fallback when the provider sent no box.
func (s *documentSegmenter) cropFrom(asset models.ImageAsset, res *segment.Result) (*models.ImageAsset, models.Size, error) {
	if res.BoundingBox != nil {
		img, err := imgproc.Decode(asset.Data)
		if err != nil {
			return nil, models.Size{}, err
		}
		cropped := imgproc.CropWithPadding(img, *res.BoundingBox, s.padding)
		data, err := imgproc.EncodePNG(cropped)
		if err != nil {
			return nil, models.Size{}, err
		}
		b := cropped.Bounds()
		return &models.ImageAsset{
			ID:       asset.ID + "#crop",
			MIMEType: imgproc.MIMEPNG,
			FileName: asset.FileName,
			Data:     data,
		}, models.Size{Width: b.Dx(), Height: b.Dy()}, nil
	}

	if len(res.CroppedImage) > 0 {
		size, err := imgproc.Dimensions(res.CroppedImage)
		if err != nil {
			return nil, models.Size{}, err
		}
		return &models.ImageAsset{
			ID:       asset.ID + "#crop",
			MIMEType: imgproc.MIMEPNG,
			FileName: asset.FileName,
			Data:     res.CroppedImage,
		}, size, nil
	}

	return nil, models.Size{}, errNoCropPayload
}

type segmentError string

func (e segmentError) Error() string { return string(e) }

const errNoCropPayload = segmentError("provider reported segmented but sent neither bounding box nor cropped image")
