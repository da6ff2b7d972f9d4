package learning_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/humanizer"
	"github.com/Russete77/migadigital/pkg/learning"
	"github.com/Russete77/migadigital/pkg/store"
)

type recordingAlerter struct {
	alerts []learning.Severity
}

func (r *recordingAlerter) Alert(_ context.Context, severity learning.Severity, _ string, _ map[string]string) {
	r.alerts = append(r.alerts, severity)
}

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) InvalidateCandidates(emotion, urgency string) {
	r.keys = append(r.keys, emotion+"|"+urgency)
}

func newPipeline(t *testing.T, st store.Store) (*learning.Pipeline, *recordingAlerter, *recordingInvalidator) {
	t.Helper()
	cfg := config.Default().Learning
	alerter := &recordingAlerter{}
	inval := &recordingInvalidator{}
	return learning.NewPipeline(st, cfg, alerter, inval), alerter, inval
}

func seedLog(t *testing.T, st store.Store, log *store.ResponseLog) {
	t.Helper()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, st.CreateResponseLog(context.Background(), log))
}

func TestPositiveFeedbackReinforcesRulesAndTemplate(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, rule := range humanizer.DefaultRules() {
		require.NoError(t, st.CreateHumanizerRule(ctx, rule))
	}
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-1", Emotion: "sad", Urgency: "low", SystemPrompt: "p", Active: true,
	}))
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-1", Emotion: "sad", Urgency: "low", TemplateID: "tpl-1",
		AppliedRules: []string{humanizer.RuleContractions},
	})

	p, _, _ := newPipeline(t, st)
	p.OnFeedback(ctx, "resp-1", 5)

	rule, err := st.GetHumanizerRule(ctx, humanizer.RuleContractions)
	require.NoError(t, err)
	assert.Greater(t, rule.LearnedWeight, 0.7, "positive feedback must raise the learned weight")
	assert.Greater(t, rule.Confidence, 0.0)
	assert.Contains(t, rule.BestEmotions, "sad")
	assert.Equal(t, int64(1), rule.PositiveCorrelation)

	tpl, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tpl.TimesUsed)
	assert.Equal(t, int64(5), tpl.TotalRating)
	assert.Equal(t, int64(1), tpl.PositiveCount)

	log, err := st.GetResponseLog(ctx, "resp-1")
	require.NoError(t, err)
	assert.True(t, log.LearningProcessed)
}

func TestFeedbackIsIdempotentPerEvent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, rule := range humanizer.DefaultRules() {
		require.NoError(t, st.CreateHumanizerRule(ctx, rule))
	}
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-1", Emotion: "happy", Urgency: "low",
		AppliedRules: []string{humanizer.RuleEmoji},
	})

	p, _, _ := newPipeline(t, st)
	p.OnFeedback(ctx, "resp-1", 5)

	rule, err := st.GetHumanizerRule(ctx, humanizer.RuleEmoji)
	require.NoError(t, err)
	weightAfterFirst := rule.LearnedWeight

	// Replays must not double-count.
	p.OnFeedback(ctx, "resp-1", 5)
	p.OnFeedback(ctx, "resp-1", 1)

	rule, err = st.GetHumanizerRule(ctx, humanizer.RuleEmoji)
	require.NoError(t, err)
	assert.Equal(t, weightAfterFirst, rule.LearnedWeight)
	assert.Equal(t, int64(1), rule.PositiveCorrelation)
}

func TestNegativeFeedbackPenalizesRules(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, rule := range humanizer.DefaultRules() {
		require.NoError(t, st.CreateHumanizerRule(ctx, rule))
	}
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-1", Emotion: "angry", Urgency: "medium",
		AppliedRules: []string{humanizer.RuleMarkers},
	})

	p, _, _ := newPipeline(t, st)
	p.OnFeedback(ctx, "resp-1", 1)

	rule, err := st.GetHumanizerRule(ctx, humanizer.RuleMarkers)
	require.NoError(t, err)
	assert.Less(t, rule.LearnedWeight, 0.7, "negative feedback must lower the learned weight")
	assert.Contains(t, rule.WorstEmotions, "angry")
	assert.Equal(t, int64(1), rule.NegativeCorrelation)
}

func TestCriticalUrgencyNegativeFeedbackRaisesHighAlert(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedLog(t, st, &store.ResponseLog{ID: "resp-1", Emotion: "desperate", Urgency: "critical"})

	p, alerter, _ := newPipeline(t, st)
	p.OnFeedback(ctx, "resp-1", 1)

	require.NotEmpty(t, alerter.alerts)
	assert.Contains(t, alerter.alerts, learning.SeverityHigh)
}

func TestSustainedNegativeSignalDeactivatesTemplate(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-bad", Emotion: "sad", Urgency: "low", SystemPrompt: "p", Active: true,
		TimesUsed: 11, NegativeCount: 4, TotalRating: 22,
	}))
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-1", Emotion: "sad", Urgency: "low", TemplateID: "tpl-bad",
	})

	p, alerter, inval := newPipeline(t, st)
	p.OnFeedback(ctx, "resp-1", 1)

	tpl, err := st.GetTemplate(ctx, "tpl-bad")
	require.NoError(t, err)
	assert.False(t, tpl.Active, "template above the negative ratio must be deactivated")
	assert.Contains(t, alerter.alerts, learning.SeverityMedium)
	assert.Contains(t, inval.keys, "sad|low", "selector cache must be invalidated")
}

func TestDailyAggregationIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	seedLog(t, st, &store.ResponseLog{
		ID: "resp-1", CreatedAt: day.Add(2 * time.Hour),
		Emotion: "sad", Urgency: "low", Confidence: 0.8,
		RoboticnessBefore: 0.8, RoboticnessAfter: 0.4,
		FeedbackRating: 4,
	})
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-2", CreatedAt: day.Add(20 * time.Hour),
		Emotion: "desperate", Urgency: "critical", Confidence: 0.9,
		RoboticnessBefore: 0.9, RoboticnessAfter: 0.5,
		CrisisFlag: true,
	})
	// Outside the window.
	seedLog(t, st, &store.ResponseLog{
		ID: "resp-3", CreatedAt: day.Add(25 * time.Hour),
		Emotion: "happy", Urgency: "low",
	})

	p, _, _ := newPipeline(t, st)
	first, err := p.AggregateDaily(ctx, day)
	require.NoError(t, err)
	second, err := p.AggregateDaily(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-running must overwrite, not accumulate")
	assert.Equal(t, "2026-08-29", first.Date)
	assert.Equal(t, int64(2), first.TotalResponses)
	assert.Equal(t, int64(1), first.CrisisCount)
	assert.Equal(t, int64(1), first.RatedCount)
	assert.InDelta(t, 4.0, first.AvgRating, 1e-9)
	assert.Equal(t, 1, first.EmotionDistribution["sad"])
	assert.Equal(t, 1, first.UrgencyDistribution["critical"])
	assert.InDelta(t, 0.85, first.AvgRoboticnessBefore, 1e-9)

	stored, err := st.GetDailyMetrics(ctx, "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, first.TotalResponses, stored.TotalResponses)
}
