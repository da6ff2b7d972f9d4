package humanizer

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
	"github.com/Russete77/migadigital/pkg/store"
)

// RuleSource yields the current learned rule state. *store implementations
// satisfy it.
type RuleSource interface {
	ListHumanizerRules(ctx context.Context) ([]*store.HumanizerRule, error)
}

// Result is the outcome of one humanization pass.
type Result struct {
	Text         string
	AppliedRules []string
	Removals     int
	Contractions int
}

// Humanizer rewrites formal draft replies into the informal register the
// companion persona speaks in. Rule weights are read from the store on every
// call so learning-pipeline updates take effect without restarts.
type Humanizer struct {
	rules    RuleSource
	disabled bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Humanizer.
type Option func(*Humanizer)

// WithRand injects the randomness source. Used by tests for determinism.
func WithRand(rng *rand.Rand) Option {
	return func(h *Humanizer) { h.rng = rng }
}

// WithDisabled bypasses every probabilistic stage; only formatting runs.
func WithDisabled(disabled bool) Option {
	return func(h *Humanizer) { h.disabled = disabled }
}

func NewHumanizer(rules RuleSource, opts ...Option) *Humanizer {
	h := &Humanizer{rules: rules}
	for _, opt := range opts {
		opt(h)
	}
	if h.rng == nil {
		h.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return h
}

// Humanize applies the weighted rule pipeline to text. It never fails: when
// the rule store is unreachable the seed weights apply, and the formatting
// stage always runs. Tone comes from the selected template; formal tones
// halve the weight of the informal stages.
func (h *Humanizer) Humanize(ctx context.Context, text string, emotion classification.Emotion, intensity float64, tone string) Result {
	res := Result{Text: strings.TrimSpace(text)}
	if res.Text == "" {
		return res
	}

	if !h.disabled {
		weights := h.effectiveWeights(ctx, emotion)
		if damper := toneDamper(tone); damper != 1.0 {
			for _, name := range []string{RuleContractions, RuleMarkers, RuleEmoji} {
				weights[name] *= damper
			}
		}

		if w := weights[RulePhraseRemoval]; w >= 0.5 {
			res.Text, res.Removals = removeFormalPhrases(res.Text)
			if res.Removals > 0 {
				h.record(&res, RulePhraseRemoval)
			}
		}
		if w := weights[RuleContractions]; w >= 0.4 {
			res.Text, res.Contractions = h.applyContractions(res.Text, w)
			if res.Contractions > 0 {
				h.record(&res, RuleContractions)
			}
		}
		if w := weights[RuleMarkers]; w > 0.6 && !markerPresent.MatchString(res.Text) {
			res.Text = h.addMarker(res.Text)
			h.record(&res, RuleMarkers)
		}
		if w := weights[RuleEmoji]; intensity >= 0.4 && !emojiPresent.MatchString(res.Text) {
			if h.roll() < w*intensity {
				if next := h.addEmoji(res.Text, emotion); next != res.Text {
					res.Text = next
					h.record(&res, RuleEmoji)
				}
			}
		}
	}

	res.Text = formatText(res.Text)
	return res
}

// effectiveWeights reads the rule rows and computes per-rule effective
// weights for this emotion: the learned weight once confidence passes 0.7,
// the base weight before that, scaled up 1.2x when the emotion is among the
// rule's best emotions and down 0.6x when among the worst.
func (h *Humanizer) effectiveWeights(ctx context.Context, emotion classification.Emotion) map[string]float64 {
	weights := make(map[string]float64, 4)
	for _, r := range DefaultRules() {
		weights[r.Name] = r.BaseWeight
	}

	rules, err := h.rules.ListHumanizerRules(ctx)
	if err != nil {
		logging.Warnf("[Humanizer] rule load failed, using seed weights: %v", err)
		metrics.RecordComponentError("humanizer", "rule_load")
		return weights
	}

	for _, r := range rules {
		w := r.BaseWeight
		if r.Confidence > 0.7 {
			w = r.LearnedWeight
		}
		if containsString(r.BestEmotions, string(emotion)) {
			w *= 1.2
		} else if containsString(r.WorstEmotions, string(emotion)) {
			w *= 0.6
		}
		weights[r.Name] = w
	}
	return weights
}

// toneDamper maps a template tone to a multiplier on the informal stages.
func toneDamper(tone string) float64 {
	switch strings.ToLower(strings.TrimSpace(tone)) {
	case "formal", "profissional", "serio", "sério":
		return 0.5
	default:
		return 1.0
	}
}

func (h *Humanizer) record(res *Result, rule string) {
	res.AppliedRules = append(res.AppliedRules, rule)
	metrics.HumanizerRuleApplied.WithLabelValues(rule).Inc()
}

// removeFormalPhrases is deterministic: every match is rewritten.
func removeFormalPhrases(text string) (string, int) {
	removed := 0
	for _, p := range formalPhrases {
		if n := len(p.re.FindAllStringIndex(text, -1)); n > 0 {
			text = p.re.ReplaceAllString(text, p.replacement)
			removed += n
		}
	}
	return fixCapitalization(strings.TrimSpace(text)), removed
}

// applyContractions flips one coin per candidate substitution at probability
// equal to the rule's effective weight.
func (h *Humanizer) applyContractions(text string, weight float64) (string, int) {
	applied := 0
	for _, c := range contractions {
		if !c.re.MatchString(text) {
			continue
		}
		if h.roll() < weight {
			text = c.re.ReplaceAllString(text, c.replacement)
			applied++
		}
	}
	return text, applied
}

// addMarker prefixes a weighted discourse marker and, with fixed probability,
// appends a tag question to a mid-message sentence.
func (h *Humanizer) addMarker(text string) string {
	marker := h.drawMarker()
	text = marker + lowerFirst(text)

	if h.roll() < 0.3 {
		sentences := splitSentencesKeepingEnds(text)
		if len(sentences) >= 2 {
			idx := len(sentences) / 2
			s := sentences[idx]
			if trimmed := strings.TrimRight(s, ".!? "); trimmed != "" && !strings.HasSuffix(strings.TrimSpace(s), "?") {
				tag := tagQuestions[h.intn(len(tagQuestions))]
				sentences[idx] = trimmed + tag
				text = strings.Join(sentences, " ")
			}
		}
	}
	return text
}

func (h *Humanizer) drawMarker() string {
	total := 0.0
	for _, m := range markers {
		total += m.weight
	}
	r := h.roll() * total
	for _, m := range markers {
		r -= m.weight
		if r <= 0 {
			return m.text
		}
	}
	return markers[0].text
}

func (h *Humanizer) addEmoji(text string, emotion classification.Emotion) string {
	palette, ok := emojiPalettes[emotion]
	if !ok || len(palette) == 0 {
		return text
	}
	emoji := palette[h.intn(len(palette))]
	return strings.TrimRight(text, " ") + " " + emoji
}

func (h *Humanizer) roll() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func (h *Humanizer) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

var (
	repeatedPunct = regexp.MustCompile(`([.!?]){2,}`)
	repeatedSpace = regexp.MustCompile(`[ \t]{2,}`)
	spaceComma    = regexp.MustCompile(`\s+,`)
)

// formatText is the always-on cleanup stage: collapse repeated punctuation
// and whitespace, and break long runs of sentences into short paragraphs.
func formatText(text string) string {
	text = repeatedPunct.ReplaceAllString(text, "$1")
	text = repeatedSpace.ReplaceAllString(text, " ")
	text = spaceComma.ReplaceAllString(text, ",")
	text = strings.TrimSpace(text)

	sentences := splitSentencesKeepingEnds(text)
	if len(sentences) <= 3 {
		return text
	}
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			if i%3 == 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(s)
	}
	return b.String()
}

var sentenceWithEnd = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// splitSentencesKeepingEnds splits into sentences with their terminal
// punctuation attached.
func splitSentencesKeepingEnds(text string) []string {
	raw := sentenceWithEnd.FindAllString(text, -1)
	out := raw[:0]
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// fixCapitalization uppercases the first letter after phrase removal may have
// left the text starting mid-sentence.
func fixCapitalization(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

func lowerFirst(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
