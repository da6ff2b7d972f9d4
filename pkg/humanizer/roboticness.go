package humanizer

import (
	"regexp"
	"strings"
)

// signal is one signed contribution to the roboticness score.
type signal struct {
	re     *regexp.Regexp
	weight float64 // positive reads more mechanical, negative more natural
	cap    int     // max counted occurrences; 0 means count once
}

func sig(weight float64, cap int, expr string) signal {
	return signal{re: regexp.MustCompile(expr), weight: weight, cap: cap}
}

// roboticSignals is the explicit weight table behind DetectRoboticness.
var roboticSignals = []signal{
	// Mechanical markers
	sig(0.20, 1, `(?i)como\s+(uma\s+)?(ia|intelig[eê]ncia\s+artificial)`),
	sig(0.20, 1, `(?i)assistente\s+virtual`),
	sig(0.15, 1, `(?i)n[aã]o\s+possuo\s+(sentimentos|emo[cç][oõ]es)`),
	sig(0.05, 3, `(?i)[eé]\s+importante\s+(ressaltar|notar|destacar)`),
	sig(0.05, 3, `(?i)recomendo\s+que`),
	sig(0.05, 3, `(?i)sugiro\s+que`),
	sig(0.04, 3, `(?i)no\s+entanto`),
	sig(0.04, 3, `(?i)entretanto`),
	sig(0.04, 3, `(?i)al[eé]m\s+disso`),
	sig(0.04, 3, `(?i)portanto`),
	sig(0.04, 3, `(?i)dessa\s+forma`),
	sig(0.03, 4, `;`),
	sig(0.05, 2, `(?m)^\s*\d+[.)]\s`),

	// Natural markers
	sig(-0.08, 1, `(?i)^(olha|então|poxa|ah|sabe|nossa)[,\s]`),
	// Trailing \b never matches after an accented letter, hence the
	// explicit delimiter.
	sig(-0.04, 4, `(?i)\b(tá|tô|pra|pro|né|vamo)($|[^\p{L}])`),
	sig(-0.08, 1, `[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`),
	sig(-0.03, 2, `!`),
	sig(-0.05, 1, `\?\s*$`),
}

// DetectRoboticness scores how mechanical a piece of text reads, in [0.1, 1].
// Lower is more natural. The function is pure: no randomness, no external
// calls, identical output for identical input — it is both a live signal and
// a learning-feedback metric.
func DetectRoboticness(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0.1
	}

	score := 0.75
	for _, s := range roboticSignals {
		n := len(s.re.FindAllStringIndex(trimmed, -1))
		if n == 0 {
			continue
		}
		if s.cap > 0 && n > s.cap {
			n = s.cap
		}
		score += s.weight * float64(n)
	}

	sentences := splitSentences(trimmed)
	long, short := 0, 0
	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))
		if words > 30 {
			long++
		}
		if words > 0 && words <= 8 {
			short++
		}
	}
	score += 0.04 * float64(minInt(long, 3))
	if len(sentences) >= 3 && float64(short)/float64(len(sentences)) > 0.6 {
		score -= 0.10
	}

	if score < 0.1 {
		return 0.1
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+|[.!?]+$`)

// splitSentences breaks text on terminal punctuation, dropping empties.
func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
