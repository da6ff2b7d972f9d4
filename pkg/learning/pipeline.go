package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
	"github.com/Russete77/migadigital/pkg/store"
)

// CacheInvalidator drops cached template candidates after a deactivation so
// the selector stops offering the template immediately.
type CacheInvalidator interface {
	InvalidateCandidates(emotion, urgency string)
}

// Pipeline turns feedback events into weight and statistic updates. Every
// single-event failure is caught and logged here; nothing propagates back to
// the caller that recorded the feedback.
type Pipeline struct {
	store   store.Store
	cfg     config.LearningConfig
	alerter Alerter
	caches  CacheInvalidator
}

func NewPipeline(st store.Store, cfg config.LearningConfig, alerter Alerter, caches CacheInvalidator) *Pipeline {
	if alerter == nil {
		alerter = LogAlerter{}
	}
	return &Pipeline{store: st, cfg: cfg, alerter: alerter, caches: caches}
}

// OnFeedback processes one rating tied to a response log. The processed flag
// flips only after every applicable update succeeded, so a retried event
// re-runs its updates rather than silently dropping them; a flag already set
// means the event is a duplicate and nothing is applied twice.
func (p *Pipeline) OnFeedback(ctx context.Context, responseID string, rating int) {
	if err := p.process(ctx, responseID, rating); err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			metrics.FeedbackCount.WithLabelValues("duplicate").Inc()
			return
		}
		logging.Errorf("[Learning] feedback for response %s failed: %v", responseID, err)
		metrics.FeedbackCount.WithLabelValues("error").Inc()
		return
	}
	metrics.FeedbackCount.WithLabelValues("processed").Inc()
}

func (p *Pipeline) process(ctx context.Context, responseID string, rating int) error {
	log, err := p.store.GetResponseLog(ctx, responseID)
	if err != nil {
		return fmt.Errorf("load response log: %w", err)
	}
	if log.LearningProcessed {
		return store.ErrAlreadyProcessed
	}

	if err := p.updateRules(ctx, log, rating); err != nil {
		return err
	}
	if err := p.updateTemplate(ctx, log, rating); err != nil {
		return err
	}
	if err := p.updateExperiment(ctx, log, rating); err != nil {
		return err
	}
	p.checkNegativeSignal(ctx, log, rating)

	// Flag flips last, only once everything above succeeded.
	if err := p.store.MarkResponseProcessed(ctx, responseID); err != nil {
		return err
	}
	return nil
}

// updateRules nudges each applied rule's learned weight toward the feedback.
// The step shrinks as confidence grows, so established rules move slowly.
func (p *Pipeline) updateRules(ctx context.Context, log *store.ResponseLog, rating int) error {
	positive := rating >= 4
	negative := rating <= 2
	if !positive && !negative {
		return nil
	}

	for _, name := range log.AppliedRules {
		rule, err := p.store.GetHumanizerRule(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logging.Warnf("[Learning] applied rule %q no longer exists", name)
				continue
			}
			return fmt.Errorf("load rule %s: %w", name, err)
		}

		step := p.cfg.LearningRate * (1 - rule.Confidence)
		fb := store.RuleFeedback{Positive: positive}
		if positive {
			fb.WeightDelta = step
			fb.ConfidenceDelta = p.cfg.LearningRate / 2
			fb.AddBestEmotion = log.Emotion
		} else {
			fb.WeightDelta = -step
			fb.ConfidenceDelta = -p.cfg.LearningRate / 4
			fb.AddWorstEmotion = log.Emotion
		}
		if err := p.store.ApplyRuleFeedback(ctx, name, fb); err != nil {
			return fmt.Errorf("apply rule feedback %s: %w", name, err)
		}
	}
	return nil
}

func (p *Pipeline) updateTemplate(ctx context.Context, log *store.ResponseLog, rating int) error {
	if log.TemplateID == "" {
		return nil
	}
	err := p.store.AddTemplateFeedback(ctx, log.TemplateID, rating, rating >= 4, rating <= 2)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("template feedback %s: %w", log.TemplateID, err)
	}
	return nil
}

func (p *Pipeline) updateExperiment(ctx context.Context, log *store.ResponseLog, rating int) error {
	if log.ExperimentID == "" || log.Variant == "" {
		return nil
	}
	err := p.store.AddVariantConversion(ctx, log.ExperimentID, log.Variant, rating)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("variant conversion %s/%s: %w", log.ExperimentID, log.Variant, err)
	}
	return nil
}

// checkNegativeSignal handles the alerting side of a bad rating. Deactivation
// is best-effort; a failure here never blocks the processed flag.
func (p *Pipeline) checkNegativeSignal(ctx context.Context, log *store.ResponseLog, rating int) {
	if rating > 2 {
		return
	}

	logging.Warnf("[Learning] negative feedback rating=%d response=%s emotion=%s urgency=%s",
		rating, log.ID, log.Emotion, log.Urgency)

	if log.Urgency == "critical" {
		p.alerter.Alert(ctx, SeverityHigh, "negative feedback on critical-urgency response", map[string]string{
			"response_id": log.ID,
			"rating":      fmt.Sprintf("%d", rating),
		})
	}

	if log.TemplateID == "" {
		return
	}
	tpl, err := p.store.GetTemplate(ctx, log.TemplateID)
	if err != nil {
		logging.Warnf("[Learning] template %s lookup failed during deactivation check: %v", log.TemplateID, err)
		return
	}
	if !tpl.Active || tpl.TimesUsed < int64(p.cfg.DeactivateMinUses) {
		return
	}
	ratio := float64(tpl.NegativeCount) / float64(tpl.TimesUsed)
	if ratio <= p.cfg.DeactivateNegRatio {
		return
	}

	if err := p.store.DeactivateTemplate(ctx, tpl.ID); err != nil {
		logging.Errorf("[Learning] deactivating template %s failed: %v", tpl.ID, err)
		return
	}
	metrics.TemplateDeactivations.Inc()
	if p.caches != nil {
		p.caches.InvalidateCandidates(tpl.Emotion, tpl.Urgency)
	}
	p.alerter.Alert(ctx, SeverityMedium, "template auto-deactivated on sustained negative feedback", map[string]string{
		"template_id": tpl.ID,
		"emotion":     tpl.Emotion,
		"urgency":     tpl.Urgency,
		"neg_ratio":   fmt.Sprintf("%.2f", ratio),
	})
}
