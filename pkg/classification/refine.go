package classification

import (
	"regexp"
	"sort"
)

// emotionFamily is a curated regular-expression family for one emotion. Each
// compiled pattern contributes its weight to the family score; boost is added
// to intensity when the family takes over the tier result.
type emotionFamily struct {
	emotion  Emotion
	boost    float64
	patterns []weightedPattern
}

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

func pat(weight float64, expr string) weightedPattern {
	return weightedPattern{re: regexp.MustCompile(expr), weight: weight}
}

// crisisPatterns detect self-harm and suicide phrasing. A match here is
// non-negotiable: desperate, critical, intensity at least 0.95, no matter
// what any upstream tier said.
var crisisPatterns = []weightedPattern{
	pat(1.0, `(?i)quero\s+morrer`),
	pat(1.0, `(?i)vou\s+me\s+matar`),
	pat(1.0, `(?i)me\s+matar`),
	pat(1.0, `(?i)tirar\s+(a\s+)?minha\s+vida`),
	pat(1.0, `(?i)acabar\s+com\s+(a\s+minha\s+vida|tudo)`),
	pat(1.0, `(?i)n[aã]o\s+aguento\s+mais\s+viver`),
	pat(1.0, `(?i)n[aã]o\s+quero\s+mais\s+viver`),
	pat(1.0, `(?i)me\s+machucar`),
	pat(1.0, `(?i)me\s+cortar`),
	pat(1.0, `(?i)sumir\s+(do\s+mundo|de\s+vez)`),
	pat(0.9, `(?i)melhor\s+sem\s+mim`),
	pat(0.9, `(?i)suic[ií]d`),
}

// refinementFamilies are the per-emotion regex families scanned after every
// tier. Ordered scan, highest score wins.
var refinementFamilies = []emotionFamily{
	{
		emotion: EmotionDesperate,
		boost:   0.3,
		patterns: []weightedPattern{
			pat(0.9, `(?i)n[aã]o\s+aguento\s+mais`),
			pat(0.8, `(?i)estou\s+no\s+(meu\s+)?limite`),
			pat(0.8, `(?i)sem\s+sa[ií]da`),
			pat(0.7, `(?i)ningu[eé]m\s+(me\s+ajuda|se\s+importa)`),
			pat(0.6, `(?i)desisto\s+de\s+tudo`),
		},
	},
	{
		emotion: EmotionAnxious,
		boost:   0.2,
		patterns: []weightedPattern{
			pat(0.8, `(?i)crise\s+de\s+ansiedade`),
			pat(0.8, `(?i)ataque\s+de\s+p[aâ]nico`),
			pat(0.6, `(?i)n[aã]o\s+consigo\s+(dormir|respirar|parar\s+de\s+pensar)`),
			pat(0.5, `(?i)muito\s+(nervos|ansios)`),
			pat(0.4, `(?i)e\s+se\s+(der|acontecer|for)\s+.{0,30}errado`),
		},
	},
	{
		emotion: EmotionSad,
		boost:   0.2,
		patterns: []weightedPattern{
			pat(0.7, `(?i)muito\s+triste`),
			pat(0.7, `(?i)chorei\s+(o\s+dia|a\s+noite)`),
			pat(0.6, `(?i)me\s+sinto\s+(um\s+lixo|in[uú]til|vazi)`),
			pat(0.5, `(?i)t[oô]\s+mal`),
			pat(0.4, `(?i)sem\s+vontade\s+de\s+nada`),
		},
	},
	{
		emotion: EmotionAngry,
		boost:   0.2,
		patterns: []weightedPattern{
			pat(0.8, `(?i)morrendo\s+de\s+raiva`),
			pat(0.7, `(?i)que\s+raiva`),
			pat(0.5, `(?i)n[aã]o\s+[eé]\s+justo`),
			pat(0.5, `(?i)me\s+tratou\s+mal`),
		},
	},
	{
		emotion: EmotionHappy,
		boost:   0.15,
		patterns: []weightedPattern{
			pat(0.8, `(?i)muito\s+feliz`),
			pat(0.7, `(?i)consegui\s+superar`),
			pat(0.6, `(?i)melhor\s+dia`),
			pat(0.5, `(?i)deu\s+tudo\s+certo`),
		},
	},
	{
		emotion: EmotionHopeful,
		boost:   0.1,
		patterns: []weightedPattern{
			pat(0.7, `(?i)vai\s+dar\s+certo`),
			pat(0.6, `(?i)tenho\s+esperan[cç]a`),
			pat(0.5, `(?i)quero\s+melhorar`),
			pat(0.5, `(?i)vou\s+tentar\s+de\s+novo`),
		},
	},
	{
		emotion: EmotionConfused,
		boost:   0.1,
		patterns: []weightedPattern{
			pat(0.7, `(?i)n[aã]o\s+sei\s+o\s+que\s+(fazer|pensar)`),
			pat(0.5, `(?i)t[oô]\s+perdid`),
			pat(0.4, `(?i)ser[aá]\s+que`),
		},
	},
}

// urgencyPatterns grade phrasing by severity, independently of emotion.
var urgencyPatterns = map[Urgency][]weightedPattern{
	UrgencyCritical: {
		pat(1, `(?i)quero\s+morrer`),
		pat(1, `(?i)me\s+matar`),
		pat(1, `(?i)n[aã]o\s+aguento\s+mais\s+viver`),
		pat(1, `(?i)suic[ií]d`),
	},
	UrgencyHigh: {
		pat(1, `(?i)socorro`),
		pat(1, `(?i)emerg[eê]ncia`),
		pat(1, `(?i)preciso\s+de\s+ajuda\s+(urgente|agora)`),
		pat(1, `(?i)ataque\s+de\s+p[aâ]nico`),
		pat(1, `(?i)n[aã]o\s+consigo\s+respirar`),
	},
	UrgencyMedium: {
		pat(1, `(?i)preciso\s+de\s+ajuda`),
		pat(1, `(?i)n[aã]o\s+aguento\s+mais`),
		pat(1, `(?i)urgente`),
		pat(1, `(?i)muito\s+mal`),
	},
}

// familyScore is the outcome of scanning one family against a text.
type familyScore struct {
	emotion Emotion
	boost   float64
	score   float64
	matches []string
}

// scanFamilies scores every refinement family against the text and returns
// scores sorted best-first.
func scanFamilies(text string) []familyScore {
	var out []familyScore
	for _, family := range refinementFamilies {
		fs := familyScore{emotion: family.emotion, boost: family.boost}
		for _, wp := range family.patterns {
			if m := wp.re.FindString(text); m != "" {
				fs.score += wp.weight
				fs.matches = append(fs.matches, m)
			}
		}
		if fs.score > 0 {
			out = append(out, fs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// matchesCrisis reports whether any crisis pattern fires, with the matched
// phrases.
func matchesCrisis(text string) (bool, []string) {
	var matches []string
	for _, wp := range crisisPatterns {
		if m := wp.re.FindString(text); m != "" {
			matches = append(matches, m)
		}
	}
	return len(matches) > 0, matches
}

// refine applies the keyword refinement pass to a tier result. The highest
// scoring family overrides the tier result at score >= 0.8, or blends in at
// half boost at score >= 0.5 when the family is negative and the tier result
// was not. The crisis override runs last and always wins.
func refine(text string, base *Result) *Result {
	result := *base

	families := scanFamilies(text)
	if len(families) > 0 {
		top := families[0]
		switch {
		case top.score >= 0.8:
			result.Emotion = top.emotion
			result.Intensity = clampUnit(result.Intensity + top.boost)
			result.Confidence = clampUnit(maxFloat(result.Confidence, minFloat(top.score, 1)))
		case top.score >= 0.5 && top.emotion.IsNegative() && !result.Emotion.IsNegative():
			result.Emotion = top.emotion
			result.Intensity = clampUnit(result.Intensity + top.boost/2)
		}
		result.Keywords = topKeywords(families, 5)
	}

	// Urgency from phrasing and from emotion+intensity, max severity wins.
	// A tier that already set an urgency (fail-safe path) is never downgraded.
	computed := MaxUrgency(urgencyFromPatterns(text), urgencyFromEmotion(result.Emotion, result.Intensity))
	prior := base.Urgency
	if prior == "" {
		prior = UrgencyLow
	}
	result.Urgency = MaxUrgency(prior, computed)

	// Crisis override, last and unconditional.
	if crisis, matches := matchesCrisis(text); crisis {
		result.Emotion = EmotionDesperate
		result.Urgency = UrgencyCritical
		if result.Intensity < 0.95 {
			result.Intensity = 0.95
		}
		result.Confidence = maxFloat(result.Confidence, 0.9)
		result.Crisis = true
		result.Keywords = dedupeKeywords(append(matches, result.Keywords...), 5)
	}

	return &result
}

func urgencyFromPatterns(text string) Urgency {
	for _, level := range []Urgency{UrgencyCritical, UrgencyHigh, UrgencyMedium} {
		for _, wp := range urgencyPatterns[level] {
			if wp.re.MatchString(text) {
				return level
			}
		}
	}
	return UrgencyLow
}

func urgencyFromEmotion(emotion Emotion, intensity float64) Urgency {
	switch {
	case emotion == EmotionDesperate && intensity >= 0.8:
		return UrgencyHigh
	case emotion.IsNegative() && intensity >= 0.85:
		return UrgencyHigh
	case emotion.IsNegative() && intensity >= 0.6:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// topKeywords collects matched phrases across families, best family first.
func topKeywords(families []familyScore, limit int) []string {
	var all []string
	for _, fs := range families {
		all = append(all, fs.matches...)
	}
	return dedupeKeywords(all, limit)
}

func dedupeKeywords(keywords []string, limit int) []string {
	seen := make(map[string]bool, len(keywords))
	var out []string
	for _, k := range keywords {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
