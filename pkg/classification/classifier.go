package classification

import (
	"context"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
)

// Classifier runs the tiered fallback chain with keyword refinement and
// memoization. Classify never fails: every tier error moves the chain
// forward, and the lexical tier at the end always produces a result.
type Classifier struct {
	tiers []Tier
	memo  MemoCache
}

// NewClassifier builds the fallback chain from configuration. Endpoints that
// are disabled or unconfigured are excluded from the chain; the lexical tier
// is always present and always last.
func NewClassifier(cfg config.ClassifierConfig, memo MemoCache) *Classifier {
	var tiers []Tier

	if !cfg.Primary.Disabled && cfg.Primary.URL != "" {
		name := cfg.Primary.Name
		if name == "" {
			name = "sentiment-pt"
		}
		tiers = append(tiers, NewRemoteTier(name, cfg.Primary, cfg.ClassifierTimeout(), mapSentimentScores))
	}
	if !cfg.Secondary.Disabled && cfg.Secondary.URL != "" {
		name := cfg.Secondary.Name
		if name == "" {
			name = "sentiment-multilingual"
		}
		tiers = append(tiers, NewRemoteTier(name, cfg.Secondary, cfg.ClassifierTimeout(), mapPolarityScores))
	}
	tiers = append(tiers, NewLexicalTier())

	return &Classifier{tiers: tiers, memo: memo}
}

// Classify turns raw text into a classification result. It never returns an
// error; the worst case is a low-confidence lexical result. The crisis
// override is applied inside the refinement pass regardless of which tier
// produced the base result.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	key := memoKey(text)
	if c.memo != nil {
		if cached, ok := c.memo.Get(ctx, key); ok {
			metrics.RecordCacheOperation("classification_memo", "hit")
			return cached
		}
		metrics.RecordCacheOperation("classification_memo", "miss")
	}

	var base *Result
	for _, tier := range c.tiers {
		result, err := tier.Attempt(ctx, text)
		if err != nil {
			logging.Warnf("[Classifier] tier %s failed, trying next: %v", tier.Name(), err)
			metrics.RecordComponentError("classifier", tier.Name())
			continue
		}
		base = result
		break
	}
	if base == nil {
		// Every tier errored, including the lexical one, which should not
		// happen. Fail safe: unknown state is treated as high urgency.
		logging.Errorf("[Classifier] all tiers failed, returning fail-safe result")
		base = &Result{
			Emotion:    EmotionConfused,
			Intensity:  0.5,
			Urgency:    UrgencyHigh,
			Confidence: 0.1,
			ModelUsed:  "fail-safe",
		}
	}

	result := refine(text, base)
	result.Intensity = clampUnit(result.Intensity)
	result.Confidence = clampUnit(result.Confidence)

	metrics.ClassifierTierCount.WithLabelValues(result.ModelUsed, string(result.Emotion)).Inc()
	if result.Crisis {
		metrics.CrisisCount.Inc()
		logging.Warnf("[Classifier] crisis phrasing detected, urgency forced to critical")
	}

	if c.memo != nil {
		c.memo.Set(ctx, key, result)
	}
	return result
}

// Close releases the memoization cache.
func (c *Classifier) Close() error {
	if c.memo != nil {
		return c.memo.Close()
	}
	return nil
}
