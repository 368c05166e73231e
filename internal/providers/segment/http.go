package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heliolab/labassist/internal/models"
)

// HTTPProvider talks to the external segmentation service over JSON/HTTP.
type HTTPProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPProvider(url, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Close() error { return nil }

type segmentRequest struct {
	Image    string `json:"image"` // base64
	MIMEType string `json:"mime_type"`
	Prompt   string `json:"prompt"`
	Padding  int    `json:"padding"`
}

type segmentResponse struct {
	Segmented    bool                `json:"segmented"`
	BoundingBox  *models.BoundingBox `json:"bounding_box,omitempty"`
	CroppedImage string              `json:"cropped_image,omitempty"` // base64
	Reason       string              `json:"reason,omitempty"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *HTTPProvider) Segment(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(segmentRequest{
		Image:    base64.StdEncoding.EncodeToString(req.Image),
		MIMEType: req.MIMEType,
		Prompt:   req.Prompt,
		Padding:  req.Padding,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("segmentation request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return nil, fmt.Errorf("segmentation provider %d: %s", resp.StatusCode, msg)
	}

	var parsed segmentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	// Some providers return 200 with an inline error object.
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("segmentation provider: %s", parsed.Error.Message)
	}

	out := &Result{
		Segmented:   parsed.Segmented,
		BoundingBox: parsed.BoundingBox,
		Reason:      parsed.Reason,
	}
	if parsed.CroppedImage != "" {
		cropped, err := base64.StdEncoding.DecodeString(parsed.CroppedImage)
		if err == nil {
			out.CroppedImage = cropped
		}
	}
	return out, nil
}
