package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heliolab/labassist/internal/cache"
	"github.com/heliolab/labassist/internal/providers/catalog"
)

const (
	visionModelsKey = "models:vision:free"
	allModelsKey    = "models:all"
)

// ModelSelector supplies the ranked candidate list the rotation detector
// walks. It caches the provider catalog and degrades in order: fresh cache →
// live fetch → stale cache → hardcoded known-good list.
type ModelSelector interface {
	// TopFreeVisionModels returns up to count free image-input/text-output
	// model ids, most recently published first.
	TopFreeVisionModels(ctx context.Context, count int) []string
	// AllModelIDs returns the unfiltered catalog ids (shorter TTL).
	AllModelIDs(ctx context.Context) ([]string, error)
}

type modelListEntry struct {
	ModelIDs    []string `json:"model_ids"`
	FetchedAtMS int64    `json:"fetched_at_ms"`
}

func (e modelListEntry) fresh(ttl time.Duration) bool {
	return time.Since(time.UnixMilli(e.FetchedAtMS)) < ttl
}

type modelSelector struct {
	catalog  catalog.Provider
	cache    cache.Cache
	log      *logrus.Logger
	ttl      time.Duration // vision list
	allTTL   time.Duration // general list
	fallback []string
}

func NewModelSelector(cat catalog.Provider, c cache.Cache, log *logrus.Logger, visionTTL, generalTTL time.Duration, fallback []string) ModelSelector {
	if visionTTL <= 0 {
		visionTTL = time.Hour
	}
	if generalTTL <= 0 {
		generalTTL = 5 * time.Minute
	}
	return &modelSelector{
		catalog:  cat,
		cache:    c,
		log:      log,
		ttl:      visionTTL,
		allTTL:   generalTTL,
		fallback: fallback,
	}
}

func (s *modelSelector) TopFreeVisionModels(ctx context.Context, count int) []string {
	const op = "ModelSelector.TopFreeVisionModels"
	if count <= 0 {
		count = 3
	}

	// Entries are stored without a backend TTL; freshness is judged from
	// FetchedAtMS so an expired entry stays readable for the stale path.
	var entry modelListEntry
	hit, err := s.cache.GetJSON(ctx, visionModelsKey, &entry)
	if err != nil {
		s.log.WithError(err).WithField("op", op).Warn("model cache read failed")
	}
	if hit && entry.fresh(s.ttl) {
		return capList(entry.ModelIDs, count)
	}

	ids, fetchErr := s.fetchFreeVisionModels(ctx)
	if fetchErr == nil {
		fresh := modelListEntry{ModelIDs: ids, FetchedAtMS: time.Now().UnixMilli()}
		if err := s.cache.SetJSON(ctx, visionModelsKey, fresh, 0); err != nil {
			s.log.WithError(err).WithField("op", op).Warn("model cache write failed")
		}
		return capList(ids, count)
	}

	// Refresh failed. A stale list of once-real models beats the static
	// fallback, which is the last resort.
	if hit && len(entry.ModelIDs) > 0 {
		s.log.WithError(fetchErr).WithFields(logrus.Fields{
			"op":         op,
			"fetched_at": time.UnixMilli(entry.FetchedAtMS),
		}).Warn("catalog refresh failed, serving stale model list")
		return capList(entry.ModelIDs, count)
	}

	s.log.WithError(fetchErr).WithField("op", op).Warn("catalog unavailable and no cache, using fallback models")
	return capList(s.fallback, count)
}

func (s *modelSelector) fetchFreeVisionModels(ctx context.Context) ([]string, error) {
	all, err := s.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	vision := make([]catalog.Model, 0, 32)
	for _, m := range all {
		if m.SupportsVision() && m.IsFree() {
			vision = append(vision, m)
		}
	}
	// The catalog carries no usage counters, so recency is the ranking
	// signal; the catalog's own order breaks ties.
	sort.SliceStable(vision, func(i, j int) bool {
		return vision[i].Created > vision[j].Created
	})

	ids := make([]string, len(vision))
	for i, m := range vision {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *modelSelector) AllModelIDs(ctx context.Context) ([]string, error) {
	const op = "ModelSelector.AllModelIDs"

	var entry modelListEntry
	hit, err := s.cache.GetJSON(ctx, allModelsKey, &entry)
	if err != nil {
		s.log.WithError(err).WithField("op", op).Warn("model cache read failed")
	}
	if hit && entry.fresh(s.allTTL) {
		return entry.ModelIDs, nil
	}

	all, fetchErr := s.catalog.ListModels(ctx)
	if fetchErr != nil {
		if hit && len(entry.ModelIDs) > 0 {
			s.log.WithError(fetchErr).WithField("op", op).Warn("catalog refresh failed, serving stale model list")
			return entry.ModelIDs, nil
		}
		return nil, fetchErr
	}

	ids := make([]string, len(all))
	for i, m := range all {
		ids[i] = m.ID
	}
	if err := s.cache.SetJSON(ctx, allModelsKey, modelListEntry{ModelIDs: ids, FetchedAtMS: time.Now().UnixMilli()}, 0); err != nil {
		s.log.WithError(err).WithField("op", op).Warn("model cache write failed")
	}
	return ids, nil
}

func capList(ids []string, count int) []string {
	if len(ids) > count {
		return ids[:count]
	}
	return ids
}
