package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteTemplateRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-1", Emotion: "sad", Urgency: "low", Tone: "acolhedor",
		SystemPrompt: "prompt text", Active: true, CreatedAt: time.Now().UTC(),
	}))

	tpl, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "prompt text", tpl.SystemPrompt)
	assert.True(t, tpl.Active)

	_, err = st.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteTemplateFeedbackIsAdditive(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTemplate(ctx, &store.Template{
		ID: "tpl-1", Emotion: "sad", Urgency: "low", SystemPrompt: "p",
		Active: true, CreatedAt: time.Now().UTC(),
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, st.AddTemplateFeedback(ctx, "tpl-1", 4, true, false))
	}
	tpl, err := st.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), tpl.TimesUsed)
	assert.Equal(t, int64(40), tpl.TotalRating)
	assert.Equal(t, int64(10), tpl.PositiveCount)
}

func TestSQLiteMarkResponseProcessedFlipsExactlyOnce(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateResponseLog(ctx, &store.ResponseLog{
		ID: "resp-1", CreatedAt: time.Now().UTC(), Emotion: "sad", Urgency: "low",
		AppliedRules:   []string{"contractions"},
		StageLatencyMs: map[string]int64{"classify": 3},
	}))

	require.NoError(t, st.MarkResponseProcessed(ctx, "resp-1"))
	assert.ErrorIs(t, st.MarkResponseProcessed(ctx, "resp-1"), store.ErrAlreadyProcessed)

	log, err := st.GetResponseLog(ctx, "resp-1")
	require.NoError(t, err)
	assert.True(t, log.LearningProcessed)
	assert.Equal(t, []string{"contractions"}, log.AppliedRules)
	assert.Equal(t, int64(3), log.StageLatencyMs["classify"])
}

func TestSQLiteRuleFeedbackClampsAndTracksEmotions(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateHumanizerRule(ctx, &store.HumanizerRule{
		Name: "emoji_insertion", Type: "emoji", BaseWeight: 0.6, LearnedWeight: 0.6,
	}))

	require.NoError(t, st.ApplyRuleFeedback(ctx, "emoji_insertion", store.RuleFeedback{
		WeightDelta: 5, ConfidenceDelta: 5, Positive: true, AddBestEmotion: "happy",
	}))

	rule, err := st.GetHumanizerRule(ctx, "emoji_insertion")
	require.NoError(t, err)
	assert.Equal(t, 2.0, rule.LearnedWeight)
	assert.Equal(t, 1.0, rule.Confidence)
	assert.Contains(t, rule.BestEmotions, "happy")
	assert.Equal(t, int64(1), rule.PositiveCorrelation)
}

func TestSQLiteDailyMetricsUpsert(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertDailyMetrics(ctx, &store.DailyMetrics{
		Date: "2026-08-29", TotalResponses: 5,
		EmotionDistribution: map[string]int{"sad": 5},
	}))
	require.NoError(t, st.UpsertDailyMetrics(ctx, &store.DailyMetrics{
		Date: "2026-08-29", TotalResponses: 8,
		EmotionDistribution: map[string]int{"sad": 6, "happy": 2},
	}))

	dm, err := st.GetDailyMetrics(ctx, "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, int64(8), dm.TotalResponses)
	assert.Equal(t, 2, dm.EmotionDistribution["happy"])
}

func TestSQLiteListResponseLogsInRange(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateResponseLog(ctx, &store.ResponseLog{
		ID: "in-window", CreatedAt: day.Add(3 * time.Hour), Emotion: "sad", Urgency: "low",
	}))
	require.NoError(t, st.CreateResponseLog(ctx, &store.ResponseLog{
		ID: "next-day", CreatedAt: day.Add(26 * time.Hour), Emotion: "sad", Urgency: "low",
	}))

	logs, err := st.ListResponseLogsInRange(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "in-window", logs[0].ID)
}
