package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects every tunable of the preprocessing pipeline. The pipeline
// constants (crop padding, grid overlap, cache TTLs) are deployment-dependent,
// so all of them are overridable from the environment.
type Config struct {
	Port string

	// Vision inference (rotation detection).
	VisionProvider    string // openrouter|openai|ollama|mistral|anthropic|vertex
	VisionModel       string // optional fixed model; empty means "ask the selector"
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	VertexProjectID   string
	VertexLocation    string

	DetectCandidates  int
	DetectTimeout     time.Duration
	DetectMaxTokens   int
	DetectTemperature float64
	LosslessRotation  bool

	// Document segmentation.
	SegmenterURL     string
	SegmenterAPIKey  string
	SegmenterPrompt  string
	SegmenterTimeout time.Duration
	CropPadding      int

	// Grid segmentation.
	GridEnabled   bool
	GridOverlap   float64
	GridMinPixels int

	// Model catalog / selector.
	CatalogURL       string
	VisionListTTL    time.Duration
	CatalogTTL       time.Duration
	FallbackModels   []string
	SegmenterEnabled bool
}

// Load reads the configuration from the environment. Missing values fall back
// to the documented defaults; nothing here fails hard, a missing credential
// only disables the stage that needs it.
func Load() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		VisionProvider:    strings.ToLower(getenv("VISION_PROVIDER", "openrouter")),
		VisionModel:       os.Getenv("VISION_MODEL"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		VertexProjectID:   os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:    getenv("VERTEX_LOCATION", "us-central1"),

		DetectCandidates:  getenvInt("DETECT_CANDIDATES", 3),
		DetectTimeout:     getenvDuration("DETECT_TIMEOUT", 30*time.Second),
		DetectMaxTokens:   getenvInt("DETECT_MAX_TOKENS", 10),
		DetectTemperature: getenvFloat("DETECT_TEMPERATURE", 0.0),
		LosslessRotation:  getenvBool("LOSSLESS_ROTATION", true),

		SegmenterEnabled: getenvBool("SEGMENTER_ENABLED", true),
		SegmenterURL:     os.Getenv("SEGMENTER_URL"),
		SegmenterAPIKey:  os.Getenv("SEGMENTER_API_KEY"),
		SegmenterPrompt:  getenv("SEGMENTER_PROMPT", "document"),
		SegmenterTimeout: getenvDuration("SEGMENTER_TIMEOUT", 30*time.Second),
		CropPadding:      getenvInt("CROP_PADDING", 10),

		GridEnabled:   getenvBool("GRID_ENABLED", false),
		GridOverlap:   getenvFloat("GRID_OVERLAP", 0.07),
		GridMinPixels: getenvInt("GRID_MIN_PIXELS", 1_000_000),

		CatalogURL:    getenv("CATALOG_URL", "https://openrouter.ai/api/v1/models"),
		VisionListTTL: getenvDuration("VISION_LIST_TTL", time.Hour),
		CatalogTTL:    getenvDuration("CATALOG_TTL", 5*time.Minute),
		FallbackModels: splitList(getenv("FALLBACK_VISION_MODELS",
			"qwen/qwen2.5-vl-72b-instruct:free,google/gemini-2.0-flash-exp:free,meta-llama/llama-3.2-11b-vision-instruct:free")),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return def
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
