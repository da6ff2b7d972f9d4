// Package classification turns raw user text into a structured
// (emotion, intensity, urgency, confidence) tuple using a tiered fallback of
// external classifiers plus local keyword heuristics.
package classification

// Emotion is the closed set of emotional states the engine reasons about.
// External service labels are mapped onto this set at the classifier boundary
// and never leak raw labels into the rest of the pipeline.
type Emotion string

const (
	EmotionSad       Emotion = "sad"
	EmotionAnxious   Emotion = "anxious"
	EmotionAngry     Emotion = "angry"
	EmotionHappy     Emotion = "happy"
	EmotionConfused  Emotion = "confused"
	EmotionHopeful   Emotion = "hopeful"
	EmotionDesperate Emotion = "desperate"
)

// AllEmotions lists every emotion in the closed set.
var AllEmotions = []Emotion{
	EmotionSad, EmotionAnxious, EmotionAngry, EmotionHappy,
	EmotionConfused, EmotionHopeful, EmotionDesperate,
}

// negativeEmotions are the emotions a refinement blend may escalate into.
var negativeEmotions = map[Emotion]bool{
	EmotionSad:       true,
	EmotionAnxious:   true,
	EmotionAngry:     true,
	EmotionDesperate: true,
}

// IsNegative reports whether the emotion is a negative state.
func (e Emotion) IsNegative() bool {
	return negativeEmotions[e]
}

// Urgency is the severity the engine assigns to a message.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// MoreSevere reports whether u is strictly more severe than other.
func (u Urgency) MoreSevere(other Urgency) bool {
	return urgencyRank[u] > urgencyRank[other]
}

// MaxUrgency returns the more severe of the two urgencies.
func MaxUrgency(a, b Urgency) Urgency {
	if b.MoreSevere(a) {
		return b
	}
	return a
}

// Result is the immutable outcome of classifying one message.
type Result struct {
	Emotion    Emotion  `json:"emotion"`
	Intensity  float64  `json:"intensity"`  // [0,1]
	Urgency    Urgency  `json:"urgency"`
	Confidence float64  `json:"confidence"` // [0,1]
	Keywords   []string `json:"keywords,omitempty"` // most salient first, at most 5
	ModelUsed  string   `json:"model_used"`
	Crisis     bool     `json:"crisis"`
}

// clampUnit clamps v into [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
