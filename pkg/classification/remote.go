package classification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// Tier is one strategy in the classifier fallback chain. Attempt returns an
// error when the tier is unavailable or failed; the chain then moves on to
// the next tier.
type Tier interface {
	Name() string
	Attempt(ctx context.Context, text string) (*Result, error)
}

// LabelScore is one raw (label, score) pair from an external classification
// service.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// scoreMapper converts raw service scores into a Result. Mappers are pure and
// table-driven; they are the only place raw labels are interpreted.
type scoreMapper func(scores []LabelScore) *Result

// RemoteTier calls an external text classification endpoint. The wire format
// follows the common inference-API shape: POST {"inputs": text} returning
// either [[{label, score}]] or [{label, score}].
type RemoteTier struct {
	name    string
	url     string
	model   string
	apiKey  string
	mapper  scoreMapper
	client  *http.Client
	timeout time.Duration
}

// NewRemoteTier creates a tier backed by an external classification service.
func NewRemoteTier(name string, ep config.ClassifierEndpoint, timeout time.Duration, mapper scoreMapper) *RemoteTier {
	return &RemoteTier{
		name:    name,
		url:     ep.URL,
		model:   ep.Model,
		apiKey:  ep.APIKey,
		mapper:  mapper,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Name returns the tier name used as the result's model tag.
func (t *RemoteTier) Name() string {
	return t.name
}

// Attempt classifies the text through the remote service.
func (t *RemoteTier) Attempt(ctx context.Context, text string) (*Result, error) {
	if t.url == "" {
		return nil, fmt.Errorf("tier %s: no endpoint configured", t.name)
	}

	payload, err := json.Marshal(map[string]string{"inputs": text, "model": t.model})
	if err != nil {
		return nil, fmt.Errorf("tier %s: failed to encode request: %w", t.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tier %s: failed to build request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tier %s: request failed: %w", t.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("tier %s: unexpected status %d: %s", t.name, resp.StatusCode, string(body))
	}

	scores, err := decodeScores(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tier %s: %w", t.name, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("tier %s: empty score list", t.name)
	}

	result := t.mapper(scores)
	result.ModelUsed = t.name
	logging.Debugf("[Classifier] tier=%s emotion=%s intensity=%.2f confidence=%.2f",
		t.name, result.Emotion, result.Intensity, result.Confidence)
	return result, nil
}

// decodeScores accepts both the nested [[{label,score}]] and the flat
// [{label,score}] response shapes.
func decodeScores(r io.Reader) ([]LabelScore, error) {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var nested [][]LabelScore
	if err := json.Unmarshal(data, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}

	var flat []LabelScore
	if err := json.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}
	return nil, fmt.Errorf("unrecognized score payload: %s", truncateForLog(string(data), 200))
}

// polarity buckets raw service labels. The table covers the label variants
// the supported services emit; unknown labels fall through to neutral.
var labelPolarity = map[string]string{
	"pos":       "positive",
	"positive":  "positive",
	"label_2":   "positive",
	"5 stars":   "positive",
	"4 stars":   "positive",
	"neg":       "negative",
	"negative":  "negative",
	"label_0":   "negative",
	"1 star":    "negative",
	"2 stars":   "negative",
	"neu":       "neutral",
	"neutral":   "neutral",
	"label_1":   "neutral",
	"3 stars":   "neutral",
}

func polarityOf(label string) string {
	if p, ok := labelPolarity[strings.ToLower(strings.TrimSpace(label))]; ok {
		return p
	}
	return "neutral"
}

// mapSentimentScores maps a positive/negative/neutral score triple onto the
// emotion set using fixed thresholds. Used by the primary tier.
func mapSentimentScores(scores []LabelScore) *Result {
	var pos, neg, neu float64
	for _, s := range scores {
		switch polarityOf(s.Label) {
		case "positive":
			pos += s.Score
		case "negative":
			neg += s.Score
		default:
			neu += s.Score
		}
	}

	switch {
	case neg >= pos && neg >= neu && neg > 0.8:
		return &Result{Emotion: EmotionDesperate, Intensity: clampUnit(0.85 * neg), Confidence: clampUnit(neg)}
	case neg >= pos && neg >= neu && neg > 0.6:
		return &Result{Emotion: EmotionSad, Intensity: clampUnit(0.7 * neg), Confidence: clampUnit(neg)}
	case neg >= pos && neg >= neu:
		return &Result{Emotion: EmotionAnxious, Intensity: clampUnit(0.6 * maxFloat(neg, 0.5)), Confidence: clampUnit(maxFloat(neg, neu))}
	case pos >= neu && pos > 0.7:
		return &Result{Emotion: EmotionHappy, Intensity: clampUnit(0.75 * pos), Confidence: clampUnit(pos)}
	case pos >= neu:
		return &Result{Emotion: EmotionHopeful, Intensity: clampUnit(0.6 * maxFloat(pos, 0.5)), Confidence: clampUnit(pos)}
	default:
		return &Result{Emotion: EmotionConfused, Intensity: 0.4, Confidence: clampUnit(neu)}
	}
}

// mapPolarityScores is the simpler two-class mapping used by the secondary
// multilingual tier.
func mapPolarityScores(scores []LabelScore) *Result {
	var pos, neg float64
	for _, s := range scores {
		switch polarityOf(s.Label) {
		case "positive":
			pos += s.Score
		case "negative":
			neg += s.Score
		}
	}

	switch {
	case neg > pos && neg >= 0.75:
		return &Result{Emotion: EmotionSad, Intensity: clampUnit(0.7 * neg), Confidence: clampUnit(neg)}
	case neg > pos:
		return &Result{Emotion: EmotionAnxious, Intensity: clampUnit(0.55 * maxFloat(neg, 0.5)), Confidence: clampUnit(neg)}
	case pos > neg && pos >= 0.75:
		return &Result{Emotion: EmotionHappy, Intensity: clampUnit(0.7 * pos), Confidence: clampUnit(pos)}
	case pos > neg:
		return &Result{Emotion: EmotionHopeful, Intensity: clampUnit(0.55 * maxFloat(pos, 0.5)), Confidence: clampUnit(pos)}
	default:
		return &Result{Emotion: EmotionConfused, Intensity: 0.4, Confidence: 0.4}
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
