package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/store"
)

func TestTemplateFeedbackCountersSurviveConcurrency(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-1", Emotion: "sad", Urgency: "low", SystemPrompt: "p", Active: true,
	}))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rating := 1 + i%5
			err := st.AddTemplateFeedback(ctx, "tpl-1", rating, rating >= 4, rating <= 2)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tpl, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), tpl.TimesUsed, "no update may be lost under concurrency")
	assert.Equal(t, tpl.PositiveCount+tpl.NegativeCount+10, tpl.TimesUsed,
		"each batch of 5 ratings has 2 positive, 2 negative, 1 neutral")
}

func TestApplyRuleFeedbackClampsWeightAndConfidence(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateHumanizerRule(ctx, &store.HumanizerRule{
		Name: "emoji_insertion", Type: "emoji", BaseWeight: 0.6, LearnedWeight: 0.6,
	}))

	for i := 0; i < 100; i++ {
		require.NoError(t, st.ApplyRuleFeedback(ctx, "emoji_insertion", store.RuleFeedback{
			WeightDelta: 0.5, ConfidenceDelta: 0.5, Positive: true,
		}))
	}
	rule, err := st.GetHumanizerRule(ctx, "emoji_insertion")
	require.NoError(t, err)
	assert.Equal(t, 2.0, rule.LearnedWeight, "learned weight clamps at 2")
	assert.Equal(t, 1.0, rule.Confidence, "confidence clamps at 1")

	for i := 0; i < 100; i++ {
		require.NoError(t, st.ApplyRuleFeedback(ctx, "emoji_insertion", store.RuleFeedback{
			WeightDelta: -0.5, ConfidenceDelta: -0.5, Positive: false,
		}))
	}
	rule, err = st.GetHumanizerRule(ctx, "emoji_insertion")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rule.LearnedWeight, "learned weight clamps at 0")
	assert.Equal(t, 0.0, rule.Confidence, "confidence clamps at 0")
}

func TestBestAndWorstEmotionSetsAreExclusive(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateHumanizerRule(ctx, &store.HumanizerRule{
		Name: "contractions", Type: "contraction", BaseWeight: 0.7, LearnedWeight: 0.7,
	}))

	require.NoError(t, st.ApplyRuleFeedback(ctx, "contractions", store.RuleFeedback{
		Positive: true, AddBestEmotion: "sad",
	}))
	require.NoError(t, st.ApplyRuleFeedback(ctx, "contractions", store.RuleFeedback{
		Positive: false, AddWorstEmotion: "sad",
	}))

	rule, err := st.GetHumanizerRule(ctx, "contractions")
	require.NoError(t, err)
	assert.NotContains(t, rule.BestEmotions, "sad", "an emotion moves between sets, never appears in both")
	assert.Contains(t, rule.WorstEmotions, "sad")
}

func TestMarkResponseProcessedFlipsExactlyOnce(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateResponseLog(ctx, &store.ResponseLog{
		ID: "resp-1", CreatedAt: time.Now().UTC(), Emotion: "sad", Urgency: "low",
	}))

	require.NoError(t, st.MarkResponseProcessed(ctx, "resp-1"))
	err := st.MarkResponseProcessed(ctx, "resp-1")
	assert.ErrorIs(t, err, store.ErrAlreadyProcessed)

	log, err := st.GetResponseLog(ctx, "resp-1")
	require.NoError(t, err)
	assert.True(t, log.LearningProcessed)
}

func TestListActiveTemplatesExcludesInactive(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-on", Emotion: "sad", Urgency: "low", SystemPrompt: "p", Active: true,
	}))
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-off", Emotion: "sad", Urgency: "low", SystemPrompt: "p", Active: false,
	}))

	templates, err := st.ListActiveTemplates(ctx, "sad", "low")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "tpl-on", templates[0].ID)
}

func TestStoreReturnsCopies(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-1", Emotion: "sad", Urgency: "low", SystemPrompt: "original", Active: true,
	}))

	tpl, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	tpl.SystemPrompt = "mutated"

	fresh, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.SystemPrompt, "callers must not be able to mutate stored state")
}

func TestUpsertDailyMetricsOverwrites(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.UpsertDailyMetrics(ctx, &store.DailyMetrics{Date: "2026-08-29", TotalResponses: 5}))
	require.NoError(t, st.UpsertDailyMetrics(ctx, &store.DailyMetrics{Date: "2026-08-29", TotalResponses: 7}))

	dm, err := st.GetDailyMetrics(ctx, "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, int64(7), dm.TotalResponses)
}
