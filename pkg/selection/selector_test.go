package selection_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/selection"
	"github.com/Russete77/migadigital/pkg/store"
)

func newSelector(t *testing.T, st store.Store, epsilon float64) *selection.Selector {
	t.Helper()
	cfg := config.Default().Selection
	cfg.Epsilon = epsilon
	return selection.NewSelector(cfg, st, rand.New(rand.NewSource(42)))
}

func seedTemplate(t *testing.T, st store.Store, tpl *store.Template) {
	t.Helper()
	tpl.Active = true
	tpl.CreatedAt = time.Now()
	require.NoError(t, st.CreateTemplate(context.Background(), tpl))
}

func TestSelectFallsBackToDefaultPromptWithoutTemplates(t *testing.T) {
	st := store.NewMemoryStore()
	sel := newSelector(t, st, 0)

	res, err := sel.Select(context.Background(), classification.EmotionSad, classification.UrgencyLow, "user-1")
	require.NoError(t, err)
	assert.False(t, res.FromLibrary)
	assert.Nil(t, res.Template)
	assert.Equal(t, selection.MethodDefault, res.Method)
	assert.NotEmpty(t, res.Prompt, "default prompt must never be empty")
}

func TestDefaultPromptForCriticalMentionsCVV(t *testing.T) {
	prompt := selection.DefaultPrompt(classification.EmotionDesperate, classification.UrgencyCritical)
	assert.Contains(t, prompt, "188", "critical prompt must carry the CVV number")
}

func TestBanditExploitsPickedBestTemplate(t *testing.T) {
	st := store.NewMemoryStore()
	// epsilon 0 means pure exploitation.
	sel := newSelector(t, st, 0)

	seedTemplate(t, st, &store.Template{
		ID: "tpl-good", Emotion: "sad", Urgency: "low", SystemPrompt: "good",
		TimesUsed: 20, TotalRating: 90, // avg 4.5
	})
	seedTemplate(t, st, &store.Template{
		ID: "tpl-bad", Emotion: "sad", Urgency: "low", SystemPrompt: "bad",
		TimesUsed: 20, TotalRating: 40, // avg 2.0
	})

	res, err := sel.Select(context.Background(), classification.EmotionSad, classification.UrgencyLow, "user-1")
	require.NoError(t, err)
	require.NotNil(t, res.Template)
	assert.Equal(t, "tpl-good", res.Template.ID)
	assert.Equal(t, selection.MethodExploit, res.Method)
	assert.True(t, res.FromLibrary)
}

func TestSparseTemplatesAreDiscounted(t *testing.T) {
	st := store.NewMemoryStore()
	sel := newSelector(t, st, 0)

	// A perfect-but-sparse template loses to an established good one:
	// 5.0 * 0.8 = 4.0 versus 4.5 - 1/sqrt(100) = 4.4.
	seedTemplate(t, st, &store.Template{
		ID: "tpl-sparse", Emotion: "anxious", Urgency: "medium", SystemPrompt: "sparse",
		TimesUsed: 2, TotalRating: 10,
	})
	seedTemplate(t, st, &store.Template{
		ID: "tpl-proven", Emotion: "anxious", Urgency: "medium", SystemPrompt: "proven",
		TimesUsed: 100, TotalRating: 450,
	})

	res, err := sel.Select(context.Background(), classification.EmotionAnxious, classification.UrgencyMedium, "")
	require.NoError(t, err)
	require.NotNil(t, res.Template)
	assert.Equal(t, "tpl-proven", res.Template.ID)
}

func TestVariantAssignmentIsDeterministicPerUser(t *testing.T) {
	st := store.NewMemoryStore()
	sel := newSelector(t, st, 0)

	seedTemplate(t, st, &store.Template{
		ID: "tpl-control", Emotion: "sad", Urgency: "low", SystemPrompt: "control", IsControl: true,
	})
	seedTemplate(t, st, &store.Template{
		ID: "tpl-variant", Emotion: "sad", Urgency: "low", SystemPrompt: "variant",
		TimesUsed: 20, TotalRating: 80,
	})
	require.NoError(t, st.CreateExperiment(context.Background(), &store.Experiment{
		ID:           "exp-1",
		Type:         "prompt",
		Status:       store.ExperimentRunning,
		TrafficSplit: 0.5,
	}))

	first, err := sel.Select(context.Background(), classification.EmotionSad, classification.UrgencyLow, "user-abc")
	require.NoError(t, err)
	require.Equal(t, selection.MethodExperiment, first.Method)

	for i := 0; i < 10; i++ {
		again, err := sel.Select(context.Background(), classification.EmotionSad, classification.UrgencyLow, "user-abc")
		require.NoError(t, err)
		assert.Equal(t, first.Variant, again.Variant, "same user must stay in the same variant")
		assert.Equal(t, first.Template.ID, again.Template.ID)
	}
}

func TestDeactivatedTemplateIsNotSelected(t *testing.T) {
	st := store.NewMemoryStore()
	sel := newSelector(t, st, 0)

	seedTemplate(t, st, &store.Template{
		ID: "tpl-only", Emotion: "angry", Urgency: "medium", SystemPrompt: "only",
		TimesUsed: 20, TotalRating: 40,
	})

	res, err := sel.Select(context.Background(), classification.EmotionAngry, classification.UrgencyMedium, "")
	require.NoError(t, err)
	require.NotNil(t, res.Template)

	require.NoError(t, st.DeactivateTemplate(context.Background(), "tpl-only"))
	sel.InvalidateCandidates("angry", "medium")

	res, err = sel.Select(context.Background(), classification.EmotionAngry, classification.UrgencyMedium, "")
	require.NoError(t, err)
	assert.Nil(t, res.Template, "deactivated template must not be selected")
	assert.Equal(t, selection.MethodDefault, res.Method)
}
