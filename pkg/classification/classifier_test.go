package classification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
)

// lexicalOnly builds a classifier whose chain holds only the lexical tier.
func lexicalOnly(t *testing.T) *classification.Classifier {
	t.Helper()
	cfg := config.Default().Classifier
	cfg.Primary.URL = ""
	cfg.Secondary.URL = ""
	memo, err := classification.NewMemoCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { memo.Close() })
	return classification.NewClassifier(cfg, memo)
}

func TestCrisisPhrasesForceCriticalHandling(t *testing.T) {
	c := lexicalOnly(t)

	crisisMessages := []string{
		"Eu quero morrer, não aguento mais",
		"Não aguento mais viver desse jeito",
		"Às vezes penso em me matar",
		"Seria melhor sumir de vez, acabar com tudo",
	}

	for _, msg := range crisisMessages {
		res := c.Classify(context.Background(), msg)
		assert.True(t, res.Crisis, "message %q should flag crisis", msg)
		assert.Equal(t, classification.UrgencyCritical, res.Urgency, "message %q should be critical", msg)
		assert.Equal(t, classification.EmotionDesperate, res.Emotion, "message %q should classify desperate", msg)
		assert.GreaterOrEqual(t, res.Intensity, 0.9, "crisis intensity should be near maximum")
	}
}

func TestClassifyNeverFailsAndStaysInBounds(t *testing.T) {
	c := lexicalOnly(t)

	inputs := []string{
		"",
		"oi",
		"Hoje foi um dia incrível, consegui a vaga!!!",
		"tô muito ansiosa com a prova de amanhã, não consigo dormir",
		"QUE RAIVA desse atendimento, absurdo",
		"não sei o que fazer da minha vida",
		"xyzzy 12345 !@#$%",
	}

	for _, msg := range inputs {
		res := c.Classify(context.Background(), msg)
		require.NotNil(t, res, "classify must always return a result")
		assert.GreaterOrEqual(t, res.Intensity, 0.0)
		assert.LessOrEqual(t, res.Intensity, 1.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.Contains(t, []classification.Urgency{
			classification.UrgencyLow,
			classification.UrgencyMedium,
			classification.UrgencyHigh,
			classification.UrgencyCritical,
		}, res.Urgency)
		assert.NotEmpty(t, res.Emotion)
		assert.LessOrEqual(t, len(res.Keywords), 5)
	}
}

func TestLexicalEmotions(t *testing.T) {
	c := lexicalOnly(t)

	cases := []struct {
		message string
		emotion classification.Emotion
	}{
		{"tô muito triste hoje, chorei o dia todo", classification.EmotionSad},
		{"estou com muito medo e ansiedade, meu coração tá acelerado", classification.EmotionAnxious},
		{"que raiva, tô furiosa com isso", classification.EmotionAngry},
		{"tô tão feliz, que alegria!", classification.EmotionHappy},
	}

	for _, tc := range cases {
		res := c.Classify(context.Background(), tc.message)
		assert.Equal(t, tc.emotion, res.Emotion, "message %q", tc.message)
	}
}

func TestLexicalTieBreaksDeterministically(t *testing.T) {
	tier := classification.NewLexicalTier()

	// "triste" (sad) and "raiva" (angry) score 0.5 each; the tier is hit
	// directly so no memoization can mask an unstable pick.
	msg := "misturando triste com raiva"
	first, err := tier.Attempt(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, classification.EmotionSad, first.Emotion, "the first emotion in the closed set wins ties")

	for i := 0; i < 20; i++ {
		res, err := tier.Attempt(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, first.Emotion, res.Emotion, "tie-break must not depend on iteration order")
	}
}

func TestClassifyMemoizationReturnsStableResult(t *testing.T) {
	c := lexicalOnly(t)

	msg := "tô muito triste hoje"
	first := c.Classify(context.Background(), msg)
	second := c.Classify(context.Background(), msg)

	assert.Equal(t, first.Emotion, second.Emotion)
	assert.Equal(t, first.Urgency, second.Urgency)
	assert.InDelta(t, first.Intensity, second.Intensity, 1e-9)
	assert.InDelta(t, first.Confidence, second.Confidence, 1e-9)
}

func TestUrgencyNeverDowngradedByRefinement(t *testing.T) {
	c := lexicalOnly(t)

	// "socorro" patterns push urgency up; a calm phrasing stays low.
	urgent := c.Classify(context.Background(), "socorro, preciso de ajuda urgente agora")
	calm := c.Classify(context.Background(), "hoje o dia foi tranquilo")

	assert.True(t, urgent.Urgency.MoreSevere(classification.UrgencyLow),
		"explicit urgency cues should raise urgency above low")
	assert.Equal(t, classification.UrgencyLow, calm.Urgency)
}
