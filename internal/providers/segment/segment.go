package segment

import (
	"context"

	"github.com/heliolab/labassist/internal/models"
)

// Request asks the provider to locate a document inside a photograph.
type Request struct {
	Image    []byte
	MIMEType string
	Prompt   string // what to look for, usually "document"
	Padding  int    // padding hint forwarded to the provider
}

// Result is the provider's answer. Segmented=false with a reason is a normal
// outcome (tight crops, empty desks), not an error.
type Result struct {
	Segmented    bool
	BoundingBox  *models.BoundingBox
	CroppedImage []byte // set by providers that crop server-side; optional
	Reason       string
}

// Provider locates a document's bounding box within a photograph. The model
// or service behind it is opaque; this package only speaks its wire format.
type Provider interface {
	Segment(ctx context.Context, req Request) (*Result, error)
	Close() error
}
