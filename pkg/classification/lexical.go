package classification

import (
	"context"
	"strings"
	"unicode"
)

// weightedKeyword pairs a keyword with its contribution to an emotion score.
type weightedKeyword struct {
	keyword string
	weight  float64
}

// lexicalPatterns holds the built-in Brazilian Portuguese keyword tables.
// Stronger, less ambiguous words carry higher weights to reduce false
// positives on casual phrasing.
var lexicalPatterns = map[Emotion][]weightedKeyword{
	EmotionSad: {
		{keyword: "triste", weight: 0.5}, {keyword: "tristeza", weight: 0.5},
		{keyword: "chorando", weight: 0.5}, {keyword: "chorar", weight: 0.4},
		{keyword: "deprimida", weight: 0.5}, {keyword: "deprimido", weight: 0.5},
		{keyword: "sozinha", weight: 0.4}, {keyword: "sozinho", weight: 0.4},
		{keyword: "vazio", weight: 0.4}, {keyword: "saudade", weight: 0.3},
		{keyword: "magoada", weight: 0.4}, {keyword: "perdi", weight: 0.3},
	},
	EmotionAnxious: {
		{keyword: "ansiosa", weight: 0.5}, {keyword: "ansioso", weight: 0.5},
		{keyword: "ansiedade", weight: 0.5}, {keyword: "nervosa", weight: 0.4},
		{keyword: "nervoso", weight: 0.4}, {keyword: "preocupada", weight: 0.4},
		{keyword: "preocupado", weight: 0.4}, {keyword: "medo", weight: 0.4},
		{keyword: "pânico", weight: 0.5}, {keyword: "aflita", weight: 0.4},
		{keyword: "coração acelerado", weight: 0.5},
	},
	EmotionAngry: {
		{keyword: "raiva", weight: 0.5}, {keyword: "ódio", weight: 0.5},
		{keyword: "irritada", weight: 0.4}, {keyword: "irritado", weight: 0.4},
		{keyword: "injusto", weight: 0.3}, {keyword: "absurdo", weight: 0.3},
		{keyword: "revoltada", weight: 0.5}, {keyword: "não aguento essa gente", weight: 0.5},
	},
	EmotionHappy: {
		{keyword: "feliz", weight: 0.5}, {keyword: "alegre", weight: 0.4},
		{keyword: "consegui", weight: 0.4}, {keyword: "ótima", weight: 0.4},
		{keyword: "ótimo", weight: 0.4}, {keyword: "maravilhosa", weight: 0.4},
		{keyword: "animada", weight: 0.4}, {keyword: "gratidão", weight: 0.4},
		{keyword: "superar", weight: 0.3}, {keyword: "amei", weight: 0.4},
	},
	EmotionConfused: {
		{keyword: "confusa", weight: 0.5}, {keyword: "confuso", weight: 0.5},
		{keyword: "não sei o que fazer", weight: 0.5}, {keyword: "perdida", weight: 0.4},
		{keyword: "perdido", weight: 0.4}, {keyword: "dúvida", weight: 0.3},
		{keyword: "não entendo", weight: 0.4},
	},
	EmotionHopeful: {
		{keyword: "esperança", weight: 0.5}, {keyword: "vai melhorar", weight: 0.4},
		{keyword: "confiante", weight: 0.4}, {keyword: "acredito", weight: 0.3},
		{keyword: "tentar de novo", weight: 0.4}, {keyword: "recomeçar", weight: 0.4},
	},
	EmotionDesperate: {
		{keyword: "desespero", weight: 0.6}, {keyword: "desesperada", weight: 0.6},
		{keyword: "desesperado", weight: 0.6}, {keyword: "não aguento", weight: 0.5},
		{keyword: "sem saída", weight: 0.5}, {keyword: "no limite", weight: 0.5},
		{keyword: "insuportável", weight: 0.5},
	},
}

// LexicalTier is the local fallback classifier. It scores weighted keyword
// tables per emotion and adjusts intensity with punctuation, caps and length
// heuristics. It never fails.
type LexicalTier struct{}

// NewLexicalTier creates the local lexical fallback tier.
func NewLexicalTier() *LexicalTier {
	return &LexicalTier{}
}

// Name returns the tier name used as the result's model tag.
func (t *LexicalTier) Name() string {
	return "lexical-fallback"
}

// Attempt scores the text against the keyword tables. A text with no matches
// yields a low-confidence confused result rather than an error.
func (t *LexicalTier) Attempt(_ context.Context, text string) (*Result, error) {
	lower := strings.ToLower(text)

	best := EmotionConfused
	bestScore := 0.0
	// Fixed iteration order keeps ties deterministic.
	for _, emotion := range AllEmotions {
		score := 0.0
		for _, wk := range lexicalPatterns[emotion] {
			if strings.Contains(lower, wk.keyword) {
				score += wk.weight
			}
		}
		if score > bestScore {
			bestScore = score
			best = emotion
		}
	}

	intensity := 0.3 + 0.4*clampUnit(bestScore)
	confidence := 0.3 + 0.3*clampUnit(bestScore)
	if bestScore == 0 {
		intensity = 0.3
		confidence = 0.2
	}

	// Punctuation and caps amplify intensity, not emotion choice.
	if strings.Contains(text, "!!") || strings.Count(text, "!") >= 3 {
		intensity += 0.1
	}
	if strings.Contains(text, "??") {
		intensity += 0.05
	}
	if capsRatio(text) > 0.5 && len(text) > 10 {
		intensity += 0.15
	}
	if len([]rune(text)) > 400 {
		intensity += 0.05
	}

	return &Result{
		Emotion:    best,
		Intensity:  clampUnit(intensity),
		Confidence: clampUnit(confidence),
		ModelUsed:  t.Name(),
	}, nil
}

func capsRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
