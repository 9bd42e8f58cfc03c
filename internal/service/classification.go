package service

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// OutdatedMarker is appended to a displayed classification when the
// underlying assessment is older than the configured threshold.
const OutdatedMarker = "*"

// optionCacheSize bounds the memoized option-lifetime lookups. The cache
// holds per-option configuration only; anything clock-dependent, the
// outdated marker included, is recomputed on every call.
const optionCacheSize = 64

type optionLifetime struct {
	days  int
	found bool
}

// ClassificationComputer derives the displayed classification for an allele
// from its resolved assessment and the classification configuration.
type ClassificationComputer struct {
	log    *logrus.Logger
	config *domain.EngineConfig
	cache  *lru.Cache[string, optionLifetime]
	now    func() time.Time
}

// NewClassificationComputer creates a new classification computer.
func NewClassificationComputer(config *domain.EngineConfig, logger *logrus.Logger) *ClassificationComputer {
	cache, _ := lru.New[string, optionLifetime](optionCacheSize)
	return &ClassificationComputer{
		log:    logger,
		config: config,
		cache:  cache,
		now:    time.Now,
	}
}

// ResolvedAssessment is the reuse-aware view of an allele's assessment: the
// local in-progress one, or the persisted one being deferred to.
type ResolvedAssessment struct {
	Classification string
	UpdatedAt      time.Time
	Persisted      bool
}

// Resolve applies the reuse resolution rule shared across the engine: a
// reused assessment defers to the persisted record; a locally classified
// state wins otherwise; with no local entry the persisted record, when
// present, still represents the allele's current conclusion.
func (c *ClassificationComputer) Resolve(allele *domain.Allele, state *domain.AlleleState) (ResolvedAssessment, bool) {
	if state != nil && !state.AlleleAssessment.Reuse && state.AlleleAssessment.Classification != "" {
		return ResolvedAssessment{Classification: state.AlleleAssessment.Classification}, true
	}
	if allele != nil && allele.AlleleAssessment != nil {
		return ResolvedAssessment{
			Classification: allele.AlleleAssessment.Classification,
			UpdatedAt:      allele.AlleleAssessment.DateCreated,
			Persisted:      true,
		}, true
	}
	return ResolvedAssessment{}, false
}

// Classification returns the displayed classification for the allele: the
// resolved value, suffixed with the outdated marker when the persisted
// assessment has exceeded its configured outdated_after_days. Returns the
// empty string when no assessment exists yet.
func (c *ClassificationComputer) Classification(allele *domain.Allele, state *domain.AlleleState) string {
	return c.classification(allele, state, false)
}

// RawClassification returns the resolved classification without the outdated
// marker. Used by sorting and finalize logic.
func (c *ClassificationComputer) RawClassification(allele *domain.Allele, state *domain.AlleleState) string {
	return c.classification(allele, state, true)
}

func (c *ClassificationComputer) classification(allele *domain.Allele, state *domain.AlleleState, raw bool) string {
	resolved, ok := c.Resolve(allele, state)
	if !ok {
		return ""
	}

	value := resolved.Classification
	if !raw && resolved.Persisted && c.IsOutdated(resolved.Classification, resolved.UpdatedAt) {
		value += OutdatedMarker
	}
	return value
}

// IsOutdated reports whether a persisted assessment with the given
// classification and timestamp has exceeded its configured lifetime. Options
// without an outdated_after_days never go stale. The comparison runs against
// the current clock on every call.
func (c *ClassificationComputer) IsOutdated(classification string, updatedAt time.Time) bool {
	days, ok := c.optionLifetimeDays(classification)
	if !ok || days <= 0 || updatedAt.IsZero() {
		return false
	}
	age := c.now().Sub(updatedAt)
	return age > time.Duration(days)*24*time.Hour
}

func (c *ClassificationComputer) optionLifetimeDays(classification string) (int, bool) {
	if cached, hit := c.cache.Get(classification); hit {
		return cached.days, cached.found
	}
	entry := optionLifetime{}
	if opt, ok := c.config.Classification.Option(classification); ok {
		entry = optionLifetime{days: opt.OutdatedAfterDays, found: true}
	}
	c.cache.Add(classification, entry)
	return entry.days, entry.found
}

// IsClassified reports whether the allele resolves to a non-empty
// classification. Used as the classified/unclassified partition filter.
func (c *ClassificationComputer) IsClassified(allele *domain.Allele, state *domain.AlleleState) bool {
	return c.RawClassification(allele, state) != ""
}
