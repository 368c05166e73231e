package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heliolab/labassist/internal/imgproc"
	"github.com/heliolab/labassist/internal/models"
)

// Event announces one asset's preprocessing settling, successfully or not.
// Websocket subscribers relay it to the client so the UI can unblock sending.
type Event struct {
	AssetID string                 `json:"asset_id"`
	Result  *models.ProcessedImage `json:"result"`
}

// PreprocessOptions are the pipeline tunables fixed at construction.
type PreprocessOptions struct {
	FixedModel    string // skip the selector and always use this model
	Candidates    int    // ranked models to try when FixedModel is empty
	Lossless      bool
	GridEnabled   bool
	GridOverlap   float64
	GridMinPixels int // grid segmentation only above this pixel count
}

// Preprocessor runs the rotate→crop→grid pipeline, once per asset.
//
// Results are keyed by asset id and live until Clear: a second Preprocess of
// the same id returns the cached artifact without re-running inference, and a
// Preprocess racing an in-flight run joins it instead of starting a duplicate.
type Preprocessor interface {
	// Submit starts the pipeline for the asset and returns immediately.
	// Duplicate submissions of an id already settled or in flight are no-ops.
	Submit(asset models.ImageAsset)
	// Preprocess is Submit plus waiting for the result. The error is only
	// ever the context's; pipeline failures degrade into the result itself.
	Preprocess(ctx context.Context, asset models.ImageAsset) (*models.ProcessedImage, error)
	// Result returns the settled artifact for an asset id, if any.
	Result(assetID string) (*models.ProcessedImage, bool)
	// Pending reports whether a run for the asset id is still in flight.
	Pending(assetID string) bool
	// Results returns every settled artifact currently cached.
	Results() []*models.ProcessedImage
	// WaitForPending blocks until every run in flight at call time settles.
	// Runs submitted after the call are not waited on.
	WaitForPending(ctx context.Context) error
	// Clear drops one settled result; ClearAll drops them all. In-flight
	// runs are unaffected and will settle normally.
	Clear(assetID string)
	ClearAll()
	// Subscribe returns a channel of settle events and a cancel func. Slow
	// subscribers lose events rather than stalling the pipeline.
	Subscribe() (<-chan Event, func())
}

type pendingOp struct {
	done   chan struct{}
	result *models.ProcessedImage
}

type preprocessor struct {
	detector  RotationDetector
	segmenter DocumentSegmenter
	selector  ModelSelector
	log       *logrus.Logger
	opts      PreprocessOptions

	mu      sync.Mutex
	results map[string]*models.ProcessedImage
	pending map[string]*pendingOp

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func NewPreprocessor(detector RotationDetector, segmenter DocumentSegmenter, selector ModelSelector, log *logrus.Logger, opts PreprocessOptions) Preprocessor {
	if opts.Candidates <= 0 {
		opts.Candidates = 3
	}
	return &preprocessor{
		detector:  detector,
		segmenter: segmenter,
		selector:  selector,
		log:       log,
		opts:      opts,
		results:   make(map[string]*models.ProcessedImage),
		pending:   make(map[string]*pendingOp),
		subs:      make(map[int]chan Event),
	}
}

func (p *preprocessor) Submit(asset models.ImageAsset) {
	p.start(asset)
}

func (p *preprocessor) Preprocess(ctx context.Context, asset models.ImageAsset) (*models.ProcessedImage, error) {
	op := p.start(asset)
	if op == nil {
		// Settled before we got here.
		res, _ := p.Result(asset.ID)
		return res, nil
	}
	select {
	case <-op.done:
		return op.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start registers the run and spawns it. It returns the pending op to wait
// on, or nil when the asset already settled.
func (p *preprocessor) start(asset models.ImageAsset) *pendingOp {
	p.mu.Lock()
	if _, ok := p.results[asset.ID]; ok {
		p.mu.Unlock()
		return nil
	}
	if op, ok := p.pending[asset.ID]; ok {
		p.mu.Unlock()
		return op
	}
	op := &pendingOp{done: make(chan struct{})}
	p.pending[asset.ID] = op
	p.mu.Unlock()

	// The pipeline outlives the submitting request: an abandoned upload
	// must still settle so a retry hits the cache instead of re-paying
	// for inference.
	go p.run(context.Background(), asset, op)
	return op
}

func (p *preprocessor) run(ctx context.Context, asset models.ImageAsset, op *pendingOp) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"asset_id": asset.ID,
				"panic":    fmt.Sprint(r),
			}).Error("preprocessing panicked")
			p.settle(asset.ID, op, &models.ProcessedImage{
				SourceAssetID: asset.ID,
				Error:         "internal preprocessing failure",
			})
		}
	}()
	p.settle(asset.ID, op, p.process(ctx, asset))
}

func (p *preprocessor) settle(assetID string, op *pendingOp, result *models.ProcessedImage) {
	p.mu.Lock()
	p.results[assetID] = result
	delete(p.pending, assetID)
	p.mu.Unlock()

	op.result = result
	close(op.done)
	p.publish(Event{AssetID: assetID, Result: result})
}

// process is the pipeline body. It never fails outright: every stage that
// errors is skipped and the image passes through unchanged, because a
// photograph the user can still send beats a hard 500.
func (p *preprocessor) process(ctx context.Context, asset models.ImageAsset) *models.ProcessedImage {
	start := time.Now()
	entry := p.log.WithField("asset_id", asset.ID)

	out := &models.ProcessedImage{SourceAssetID: asset.ID}
	defer func() { out.TimingMS = time.Since(start).Milliseconds() }()

	// Undecodable bytes fail every downstream stage; settle early with the
	// safe defaults instead of burning three inference calls.
	if _, err := imgproc.Dimensions(asset.Data); err != nil {
		entry.WithError(err).Warn("undecodable image, passing through untouched")
		out.Error = "image could not be decoded"
		return out
	}

	detection := p.detector.Detect(ctx, asset, p.candidates(ctx))
	out.RotationDegrees = detection.RotationDegrees
	out.DetectedBy = detection.DetectedBy
	if !detection.Success {
		out.Error = "rotation detection unavailable"
	}

	working := asset
	if detection.RotationDegrees != 0 {
		data, mime, err := imgproc.ApplyRotation(asset.Data, asset.MIMEType, detection.RotationDegrees, p.opts.Lossless)
		if err != nil {
			entry.WithError(err).Warn("rotation failed, keeping original orientation")
			out.RotationDegrees = 0
			out.Error = "rotation could not be applied"
		} else {
			out.RotatedAsset = &models.ImageAsset{
				ID:       asset.ID + "#rotated",
				MIMEType: mime,
				FileName: asset.FileName,
				Data:     data,
			}
			working = *out.RotatedAsset
		}
	}

	if seg := p.segmenter.Segment(ctx, working); seg.Segmented {
		out.CroppedAsset = seg.CroppedAsset
		out.UsedCrop = true
		working = *seg.CroppedAsset
	}

	p.maybeGrid(entry, working, out)

	entry.WithFields(logrus.Fields{
		"degrees":   out.RotationDegrees,
		"used_crop": out.UsedCrop,
		"segments":  len(out.Segments),
		"timing_ms": time.Since(start).Milliseconds(),
	}).Info("preprocessing settled")
	return out
}

func (p *preprocessor) candidates(ctx context.Context) []string {
	if p.opts.FixedModel != "" {
		return []string{p.opts.FixedModel}
	}
	return p.selector.TopFreeVisionModels(ctx, p.opts.Candidates)
}

// maybeGrid tiles the best variant when grid segmentation is on and the image
// is large enough to be worth nine extra inference inputs.
func (p *preprocessor) maybeGrid(entry *logrus.Entry, working models.ImageAsset, out *models.ProcessedImage) {
	if !p.opts.GridEnabled {
		return
	}
	size, err := imgproc.Dimensions(working.Data)
	if err != nil || size.Width*size.Height < p.opts.GridMinPixels {
		return
	}
	grid, err := imgproc.SegmentGrid(working, p.opts.GridOverlap, p.opts.Lossless)
	if err != nil {
		entry.WithError(err).Warn("grid segmentation failed, keeping single image")
		return
	}
	out.Segments = grid.Segments
	out.SegmentLabels = grid.Labels
}

func (p *preprocessor) Result(assetID string) (*models.ProcessedImage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.results[assetID]
	return res, ok
}

func (p *preprocessor) Results() []*models.ProcessedImage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.ProcessedImage, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	return out
}

func (p *preprocessor) Pending(assetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[assetID]
	return ok
}

func (p *preprocessor) WaitForPending(ctx context.Context) error {
	p.mu.Lock()
	waiting := make([]chan struct{}, 0, len(p.pending))
	for _, op := range p.pending {
		waiting = append(waiting, op.done)
	}
	p.mu.Unlock()

	for _, done := range waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *preprocessor) Clear(assetID string) {
	p.mu.Lock()
	delete(p.results, assetID)
	p.mu.Unlock()
}

func (p *preprocessor) ClearAll() {
	p.mu.Lock()
	p.results = make(map[string]*models.ProcessedImage)
	p.mu.Unlock()
}

func (p *preprocessor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	return ch, func() {
		p.subMu.Lock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
		p.subMu.Unlock()
	}
}

func (p *preprocessor) publish(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
