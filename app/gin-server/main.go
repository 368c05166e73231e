package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/heliolab/labassist/config"
	"github.com/heliolab/labassist/internal/api/handlers"
	"github.com/heliolab/labassist/internal/api/middleware"
	"github.com/heliolab/labassist/internal/api/routes"
	"github.com/heliolab/labassist/internal/cache"
	"github.com/heliolab/labassist/internal/logger"
	"github.com/heliolab/labassist/internal/providers/catalog"
	"github.com/heliolab/labassist/internal/providers/segment"
	"github.com/heliolab/labassist/internal/providers/vision"
	"github.com/heliolab/labassist/internal/services"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redis backs the model-list cache when configured; a single-instance
	// deployment runs fine on the in-memory cache.
	var modelCache cache.Cache = cache.NewMemoryCache()
	rdb, err := config.NewRedis(ctx)
	switch {
	case err != nil:
		log.WithError(err).Warn("redis unavailable, using in-memory cache")
	case rdb != nil:
		modelCache = cache.NewRedisCache(rdb)
		log.Info("redis connected")
	}

	visionProvider := newVisionProvider(ctx, cfg, log)
	if visionProvider != nil {
		defer visionProvider.Close()
	}

	var segmentProvider segment.Provider
	if cfg.SegmenterEnabled && cfg.SegmenterURL != "" {
		segmentProvider = segment.NewHTTPProvider(cfg.SegmenterURL, cfg.SegmenterAPIKey, cfg.SegmenterTimeout)
	} else {
		log.Info("document segmentation disabled")
	}

	selector := services.NewModelSelector(
		catalog.NewOpenRouter(cfg.CatalogURL, cfg.OpenRouterAPIKey, 0),
		modelCache, log, cfg.VisionListTTL, cfg.CatalogTTL, cfg.FallbackModels)

	detector := services.NewRotationDetector(visionProvider, log,
		cfg.DetectTimeout, cfg.DetectMaxTokens, cfg.DetectTemperature)
	segmenter := services.NewDocumentSegmenter(segmentProvider, log, cfg.SegmenterPrompt, cfg.CropPadding)

	pre := services.NewPreprocessor(detector, segmenter, selector, log, services.PreprocessOptions{
		FixedModel:    cfg.VisionModel,
		Candidates:    cfg.DetectCandidates,
		Lossless:      cfg.LosslessRotation,
		GridEnabled:   cfg.GridEnabled,
		GridOverlap:   cfg.GridOverlap,
		GridMinPixels: cfg.GridMinPixels,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Preprocess: handlers.NewPreprocessHandler(pre, selector),
		WS:         handlers.NewWSHandler(pre),
	})

	log.WithField("port", cfg.Port).Info("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// newVisionProvider builds the configured inference client. A missing
// credential is not fatal: the pipeline runs with rotation detection
// disabled and every image passes through at 0 degrees.
func newVisionProvider(ctx context.Context, cfg config.Config, log *logrus.Logger) vision.Provider {
	if cfg.VisionProvider == "vertex" {
		if cfg.VertexProjectID == "" {
			log.Warn("VERTEX_PROJECT_ID not set, rotation detection disabled")
			return nil
		}
		p, err := vision.NewVertexGemini(ctx, cfg.VertexProjectID, cfg.VertexLocation)
		if err != nil {
			log.WithError(err).Warn("vertex client init failed, rotation detection disabled")
			return nil
		}
		return p
	}

	p, err := vision.NewLangChain(vision.LangChainOptions{
		Provider: cfg.VisionProvider,
		APIKey:   cfg.OpenRouterAPIKey,
		BaseURL:  cfg.OpenRouterBaseURL,
	})
	if err != nil {
		log.WithError(err).Warn("vision client init failed, rotation detection disabled")
		return nil
	}
	return p
}
