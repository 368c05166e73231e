package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliolab/labassist/internal/models"
	"github.com/heliolab/labassist/internal/providers/vision"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeVision answers per model id; unlisted models error.
type fakeVision struct {
	answers map[string]string
	calls   []string
}

func (f *fakeVision) Generate(_ context.Context, req vision.Request) (string, error) {
	f.calls = append(f.calls, req.Model)
	if a, ok := f.answers[req.Model]; ok {
		return a, nil
	}
	return "", errors.New("model unavailable")
}

func (f *fakeVision) Close() error { return nil }

func testAsset(id string) models.ImageAsset {
	return models.ImageAsset{ID: id, MIMEType: "image/jpeg", Data: []byte("jpeg bytes")}
}

func TestDetectFirstValidAnswerWins(t *testing.T) {
	fake := &fakeVision{answers: map[string]string{"model-a": "90", "model-b": "180"}}
	d := NewRotationDetector(fake, testLogger(), time.Second, 10, 0)

	res := d.Detect(context.Background(), testAsset("a1"), []string{"model-a", "model-b"})

	require.True(t, res.Success)
	assert.Equal(t, 90, res.RotationDegrees)
	assert.Equal(t, "model-a", res.DetectedBy)
	assert.Equal(t, []string{"model-a"}, fake.calls, "later candidates are never consulted")
}

func TestDetectFallsThroughOnProviderError(t *testing.T) {
	fake := &fakeVision{answers: map[string]string{"model-b": "270"}}
	d := NewRotationDetector(fake, testLogger(), time.Second, 10, 0)

	res := d.Detect(context.Background(), testAsset("a2"), []string{"model-a", "model-b"})

	require.True(t, res.Success)
	assert.Equal(t, 270, res.RotationDegrees)
	assert.Equal(t, "model-b", res.DetectedBy)
}

func TestDetectFallsThroughOnUnparseableAnswer(t *testing.T) {
	fake := &fakeVision{answers: map[string]string{
		"model-a": "the image appears upright",
		"model-b": "ninety",
		"model-c": "180",
	}}
	d := NewRotationDetector(fake, testLogger(), time.Second, 10, 0)

	res := d.Detect(context.Background(), testAsset("a3"), []string{"model-a", "model-b", "model-c"})

	require.True(t, res.Success)
	assert.Equal(t, 180, res.RotationDegrees)
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, fake.calls)
}

func TestDetectExhaustedCandidatesDefaultsToZero(t *testing.T) {
	fake := &fakeVision{answers: map[string]string{"model-a": "45", "model-b": "upside down"}}
	d := NewRotationDetector(fake, testLogger(), time.Second, 10, 0)

	res := d.Detect(context.Background(), testAsset("a4"), []string{"model-a", "model-b"})

	assert.False(t, res.Success)
	assert.Zero(t, res.RotationDegrees)
	assert.Empty(t, res.DetectedBy)
}

func TestDetectNilProviderSkipsInference(t *testing.T) {
	d := NewRotationDetector(nil, testLogger(), time.Second, 10, 0)

	res := d.Detect(context.Background(), testAsset("a5"), []string{"model-a"})

	assert.False(t, res.Success)
	assert.Zero(t, res.RotationDegrees)
}

func TestParseRotation(t *testing.T) {
	cases := []struct {
		answer string
		want   int
		ok     bool
	}{
		{"0", 0, true},
		{"90", 90, true},
		{"180", 180, true},
		{"270", 270, true},
		{" 90 ", 90, true},
		{"90°", 90, true},
		{"Rotate by 270 degrees.", 270, true},
		{"ninety", 0, false},
		{"45", 0, false},
		{"900", 0, false},
		{"", 0, false},
		{"no rotation needed", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRotation(tc.answer)
		assert.Equal(t, tc.ok, ok, "answer=%q", tc.answer)
		if tc.ok {
			assert.Equal(t, tc.want, got, "answer=%q", tc.answer)
		}
	}
}
