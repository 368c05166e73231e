package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliolab/labassist/internal/imgproc"
	"github.com/heliolab/labassist/internal/models"
)

type fakeDetector struct {
	degrees int
	success bool
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeDetector) Detect(_ context.Context, asset models.ImageAsset, _ []string) *models.RotationResult {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return &models.RotationResult{
		SourceAssetID:   asset.ID,
		RotationDegrees: f.degrees,
		DetectedBy:      "fake-model",
		Success:         f.success,
	}
}

type noopSegmenter struct{}

func (noopSegmenter) Segment(context.Context, models.ImageAsset) *SegmentOutcome {
	return &SegmentOutcome{Reason: "segmentation provider not configured"}
}

type croppingSegmenter struct{}

func (croppingSegmenter) Segment(_ context.Context, asset models.ImageAsset) *SegmentOutcome {
	cropped := asset
	cropped.ID = asset.ID + "#crop"
	return &SegmentOutcome{Segmented: true, CroppedAsset: &cropped}
}

type staticSelector struct{}

func (staticSelector) TopFreeVisionModels(context.Context, int) []string { return []string{"m"} }
func (staticSelector) AllModelIDs(context.Context) ([]string, error)     { return []string{"m"}, nil }

func newTestPreprocessor(t *testing.T, det RotationDetector, seg DocumentSegmenter, opts PreprocessOptions) Preprocessor {
	t.Helper()
	if seg == nil {
		seg = noopSegmenter{}
	}
	return NewPreprocessor(det, seg, staticSelector{}, testLogger(), opts)
}

func TestPreprocessRotatesAndCachesResult(t *testing.T) {
	det := &fakeDetector{degrees: 90, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := pngAsset(t, "p1", 40, 20)

	res, err := p.Preprocess(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, 90, res.RotationDegrees)
	assert.Equal(t, "fake-model", res.DetectedBy)
	require.NotNil(t, res.RotatedAsset)
	assert.Equal(t, "p1#rotated", res.RotatedAsset.ID)

	size, err := imgproc.Dimensions(res.RotatedAsset.Data)
	require.NoError(t, err)
	assert.Equal(t, models.Size{Width: 20, Height: 40}, size)
	assert.Empty(t, res.Error)
}

func TestPreprocessSecondCallHitsCache(t *testing.T) {
	det := &fakeDetector{degrees: 180, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := pngAsset(t, "p2", 20, 20)

	first, err := p.Preprocess(context.Background(), asset)
	require.NoError(t, err)
	second, err := p.Preprocess(context.Background(), asset)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), det.calls.Load())
}

func TestPreprocessConcurrentSubmissionsJoinOneRun(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true, delay: 50 * time.Millisecond}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := pngAsset(t, "p3", 20, 20)

	const workers = 8
	results := make([]*models.ProcessedImage, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Preprocess(context.Background(), asset)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), det.calls.Load())
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestPreprocessUndecodableImageDegradesWithoutInference(t *testing.T) {
	det := &fakeDetector{degrees: 90, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := models.ImageAsset{ID: "p4", MIMEType: "image/png", Data: []byte("garbage")}

	res, err := p.Preprocess(context.Background(), asset)
	require.NoError(t, err)

	assert.Zero(t, res.RotationDegrees)
	assert.False(t, res.UsedCrop)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, int32(0), det.calls.Load())
}

func TestPreprocessFailedDetectionStillPassesThrough(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: false}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})

	res, err := p.Preprocess(context.Background(), pngAsset(t, "p5", 20, 20))
	require.NoError(t, err)

	assert.Zero(t, res.RotationDegrees)
	assert.Nil(t, res.RotatedAsset)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Best(), "caller falls back to the original upload")
}

func TestPreprocessUsesCropWhenSegmented(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true}
	p := newTestPreprocessor(t, det, croppingSegmenter{}, PreprocessOptions{Lossless: true})

	res, err := p.Preprocess(context.Background(), pngAsset(t, "p6", 50, 50))
	require.NoError(t, err)

	assert.True(t, res.UsedCrop)
	require.NotNil(t, res.CroppedAsset)
	assert.Equal(t, res.CroppedAsset, res.Best())
}

func TestPreprocessGridSegmentsLargeImages(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{
		Lossless:      true,
		GridEnabled:   true,
		GridOverlap:   0.07,
		GridMinPixels: 100,
	})

	res, err := p.Preprocess(context.Background(), pngAsset(t, "p7", 90, 90))
	require.NoError(t, err)

	assert.Len(t, res.Segments, models.GridCells)
	assert.Len(t, res.SegmentLabels, models.GridCells)
}

func TestPreprocessGridSkipsSmallImages(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{
		Lossless:      true,
		GridEnabled:   true,
		GridOverlap:   0.07,
		GridMinPixels: 1_000_000,
	})

	res, err := p.Preprocess(context.Background(), pngAsset(t, "p8", 90, 90))
	require.NoError(t, err)

	assert.Empty(t, res.Segments)
}

func TestWaitForPendingBlocksUntilInFlightSettles(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true, delay: 50 * time.Millisecond}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := pngAsset(t, "p9", 20, 20)

	p.Submit(asset)
	assert.True(t, p.Pending(asset.ID))

	require.NoError(t, p.WaitForPending(context.Background()))

	res, ok := p.Result(asset.ID)
	require.True(t, ok)
	assert.Equal(t, asset.ID, res.SourceAssetID)
	assert.False(t, p.Pending(asset.ID))
}

func TestWaitForPendingHonorsContext(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true, delay: time.Second}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	p.Submit(pngAsset(t, "p10", 20, 20))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitForPending(ctx), context.DeadlineExceeded)
}

func TestClearForcesReprocessing(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})
	asset := pngAsset(t, "p11", 20, 20)

	_, err := p.Preprocess(context.Background(), asset)
	require.NoError(t, err)
	p.Clear(asset.ID)

	_, ok := p.Result(asset.ID)
	assert.False(t, ok)

	_, err = p.Preprocess(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, int32(2), det.calls.Load())
}

func TestSubscribeDeliversSettleEvents(t *testing.T) {
	det := &fakeDetector{degrees: 0, success: true}
	p := newTestPreprocessor(t, det, nil, PreprocessOptions{Lossless: true})

	events, cancel := p.Subscribe()
	defer cancel()

	asset := pngAsset(t, "p12", 20, 20)
	p.Submit(asset)

	select {
	case ev := <-events:
		assert.Equal(t, asset.ID, ev.AssetID)
		require.NotNil(t, ev.Result)
		assert.Equal(t, asset.ID, ev.Result.SourceAssetID)
	case <-time.After(2 * time.Second):
		t.Fatal("no settle event received")
	}
}
