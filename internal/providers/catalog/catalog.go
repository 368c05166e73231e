package catalog

import "context"

// Model is one entry of the provider's model catalog, trimmed to the fields
// the selector actually ranks on.
type Model struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Created      int64        `json:"created"`
	Architecture Architecture `json:"architecture"`
	Pricing      Pricing      `json:"pricing"`
}

type Architecture struct {
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
}

// Pricing values arrive as decimal strings; "0" means free.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// SupportsVision reports whether the model accepts image input and produces
// text output.
func (m Model) SupportsVision() bool {
	return contains(m.Architecture.InputModalities, "image") &&
		contains(m.Architecture.OutputModalities, "text")
}

// IsFree reports whether both prompt and completion tokens cost nothing.
func (m Model) IsFree() bool {
	return isZeroPrice(m.Pricing.Prompt) && isZeroPrice(m.Pricing.Completion)
}

func isZeroPrice(s string) bool {
	return s == "" || s == "0" || s == "0.0" || s == "0.000000"
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type Provider interface {
	// ListModels fetches the full catalog with modality and pricing metadata.
	ListModels(ctx context.Context) ([]Model, error)
}
