package humanizer

import (
	"regexp"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/store"
)

// Rule names. These are the keys the learning pipeline updates weights under.
const (
	RulePhraseRemoval = "formal_phrase_removal"
	RuleContractions  = "contractions"
	RuleMarkers       = "conversational_markers"
	RuleEmoji         = "emoji_insertion"
)

// DefaultRules returns the initial rule rows seeded into the store on first
// start. Learned weights start at the base weight with zero confidence.
func DefaultRules() []*store.HumanizerRule {
	return []*store.HumanizerRule{
		{Name: RulePhraseRemoval, Type: "removal", BaseWeight: 0.9, LearnedWeight: 0.9},
		{Name: RuleContractions, Type: "contraction", BaseWeight: 0.7, LearnedWeight: 0.7},
		{Name: RuleMarkers, Type: "marker", BaseWeight: 0.7, LearnedWeight: 0.7},
		{Name: RuleEmoji, Type: "emoji", BaseWeight: 0.6, LearnedWeight: 0.6},
	}
}

// phraseReplacement rewrites one stilted pattern into informal register.
type phraseReplacement struct {
	re          *regexp.Regexp
	replacement string
}

func repl(expr, replacement string) phraseReplacement {
	return phraseReplacement{re: regexp.MustCompile(expr), replacement: replacement}
}

// formalPhrases strips AI self-reference and stilted connective phrasing.
// Order matters: self-reference patterns run before connective rewrites so a
// leading "Como uma IA, " disappears entirely instead of leaving an orphan
// comma.
var formalPhrases = []phraseReplacement{
	repl(`(?i)como\s+(uma\s+)?(ia|intelig[eê]ncia\s+artificial),?\s*`, ""),
	repl(`(?i)como\s+(um\s+)?assistente(\s+virtual)?,?\s*`, ""),
	repl(`(?i)sou\s+(apenas\s+)?(uma\s+)?(ia|intelig[eê]ncia\s+artificial)[^.!?]*[.!?]\s*`, ""),
	repl(`(?i)[eé]\s+importante\s+(ressaltar|notar|destacar)\s+que\s+`, "olha, "),
	repl(`(?i)[eé]\s+fundamental\s+que\s+`, "o que importa é que "),
	repl(`(?i)recomendo\s+(fortemente\s+)?que\s+(voc[eê]\s+)?`, "acho que vale "),
	repl(`(?i)sugiro\s+que\s+(voc[eê]\s+)?`, "que tal "),
	repl(`(?i)no\s+entanto,?\s*`, "mas "),
	repl(`(?i)entretanto,?\s*`, "mas "),
	repl(`(?i)al[eé]m\s+disso,?\s*`, "e também "),
	repl(`(?i)portanto,?\s*`, "então "),
	repl(`(?i)dessa\s+forma,?\s*`, "assim "),
	repl(`(?i)em\s+primeiro\s+lugar,?\s*`, "primeiro, "),
	repl(`(?i)vale\s+a\s+pena\s+mencionar\s+que\s+`, ""),
}

// contraction is one informal-register substitution, applied per candidate
// with probability equal to the rule's effective weight.
type contraction struct {
	re          *regexp.Regexp
	replacement string
}

func contr(expr, replacement string) contraction {
	return contraction{re: regexp.MustCompile(expr), replacement: replacement}
}

// Go's \b is an ASCII word boundary, so words ending in an accented letter
// need an explicit delimiter instead of a trailing \b. "para o" runs before
// "para" so the tighter substitution gets first shot.
var contractions = []contraction{
	contr(`\bestá($|[^\p{L}])`, "tá$1"),
	contr(`\bEstá($|[^\p{L}])`, "Tá$1"),
	contr(`\bestou\b`, "tô"),
	contr(`\bestão\b`, "tão"),
	contr(`\bpara o\b`, "pro"),
	contr(`\bpara\b`, "pra"),
	contr(`\bvamos\b`, "vamo"),
}

// markers are sentence-initial discourse markers, drawn by weight.
type weightedMarker struct {
	text   string
	weight float64
}

var markers = []weightedMarker{
	{text: "Olha, ", weight: 0.3},
	{text: "Então, ", weight: 0.2},
	{text: "Poxa, ", weight: 0.2},
	{text: "Ah, ", weight: 0.15},
	{text: "Sabe, ", weight: 0.15},
}

// markerPresent detects an existing sentence-initial discourse marker.
var markerPresent = regexp.MustCompile(`(?i)^(olha|então|poxa|ah|sabe|nossa|caramba)[,\s]`)

// tagQuestions are appended to a mid-message sentence with fixed probability.
var tagQuestions = []string{", né?", ", sabe?", ", não acha?"}

// emojiPalettes are the per-emotion emoji candidates. The desperate palette
// stays with grounding, comfort-only symbols.
var emojiPalettes = map[classification.Emotion][]string{
	classification.EmotionSad:       {"💛", "🫂"},
	classification.EmotionAnxious:   {"💛", "🌿"},
	classification.EmotionAngry:     {"😤", "💢"},
	classification.EmotionHappy:     {"🎉", "😄", "✨"},
	classification.EmotionConfused:  {"🤔", "💭"},
	classification.EmotionHopeful:   {"✨", "🌱"},
	classification.EmotionDesperate: {"💛", "🫂"},
}

var emojiPresent = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
