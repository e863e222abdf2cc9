// Package quality scores collection results. Scoring is deterministic:
// the same payload, target, and clock always produce the same numbers.
package quality

import (
	"time"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/model"
)

// Scorer computes quality and confidence for collection results
type Scorer struct {
	logger *zap.Logger
	cfg    config.ScorerConfig
}

// NewScorer creates a new scorer
func NewScorer(cfg config.ScorerConfig, logger *zap.Logger) *Scorer {
	return &Scorer{
		logger: logger.Named("scorer"),
		cfg:    cfg,
	}
}

// Score computes quality and confidence for a payload extracted from
// target, both clamped to [0,1]. Quality is the mean, over the target's
// declared fields, of the fraction of items whose text exceeds the
// minimum length. Confidence starts at a base value, gains a fixed bonus
// when the result is fresh relative to now, and, for targets that
// declare fields, up to a coverage bonus proportional to fields that
// returned any data.
func (s *Scorer) Score(target *model.CollectionTarget, payload map[string][]model.ExtractedItem, collectedAt, now time.Time) (quality, confidence float64) {
	confidence = s.cfg.BaseConfidence
	if delta := now.Sub(collectedAt); delta >= 0 && delta <= s.cfg.FreshnessWindow {
		confidence += s.cfg.FreshnessBonus
	}

	declared := len(target.Descriptor)
	if declared == 0 {
		// No declared fields means no quality signal and no coverage
		// term; base and freshness still apply.
		return 0, clamp(confidence)
	}

	var fractionSum float64
	fieldsWithData := 0
	for field := range target.Descriptor {
		items := payload[field]
		if len(items) > 0 {
			fieldsWithData++
			long := 0
			for _, item := range items {
				if len(item.Text) > s.cfg.MinTextLength {
					long++
				}
			}
			fractionSum += float64(long) / float64(len(items))
		}
	}
	quality = clamp(fractionSum / float64(declared))

	confidence += s.cfg.CoverageBonusMax * float64(fieldsWithData) / float64(declared)
	return quality, clamp(confidence)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
