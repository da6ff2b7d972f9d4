// Package selection picks a response template for a classified message,
// applying epsilon-greedy exploration, lower-confidence-bound exploitation
// and deterministic A/B experiment assignment.
package selection

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
	"github.com/Russete77/migadigital/pkg/store"
)

// Method identifies how a selection was made.
type Method string

const (
	MethodDefault    Method = "default"
	MethodExplore    Method = "explore"
	MethodExploit    Method = "exploit"
	MethodExperiment Method = "experiment"
)

// promptExperimentType is the experiment type the selector participates in.
const promptExperimentType = "prompt"

// Selection is the outcome of one template selection.
type Selection struct {
	Template    *store.Template // nil when the default prompt was used
	Prompt      string
	FromLibrary bool
	Method      Method
	ExperimentID string
	Variant      string
}

// Selector picks templates using candidate caching, experiment assignment
// and an epsilon-greedy bandit.
type Selector struct {
	store   store.Store
	cache   *candidateCache
	epsilon float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector. The rng is injected so tests can force
// deterministic exploration rolls.
func NewSelector(cfg config.SelectionConfig, st store.Store, rng *rand.Rand) *Selector {
	return &Selector{
		store:   st,
		cache:   newCandidateCache(cfg.CacheTTL()),
		epsilon: cfg.Epsilon,
		rng:     rng,
	}
}

// Select picks a template (or the hard-coded default prompt) for the
// classified message. userID may be empty for anonymous users.
func (s *Selector) Select(ctx context.Context, emotion classification.Emotion, urgency classification.Urgency, userID string) (*Selection, error) {
	candidates, err := s.candidates(ctx, emotion, urgency)
	if err != nil {
		logging.Warnf("[Selector] candidate fetch failed, using default prompt: %v", err)
		metrics.RecordComponentError("selector", "candidate_fetch")
		candidates = nil
	}

	if len(candidates) == 0 {
		metrics.SelectionCount.WithLabelValues(string(MethodDefault)).Inc()
		return &Selection{
			Prompt:      DefaultPrompt(emotion, urgency),
			FromLibrary: false,
			Method:      MethodDefault,
		}, nil
	}

	if sel := s.trySelectByExperiment(ctx, candidates, userID); sel != nil {
		metrics.SelectionCount.WithLabelValues(string(MethodExperiment)).Inc()
		return sel, nil
	}

	sel := s.selectByBandit(candidates)
	metrics.SelectionCount.WithLabelValues(string(sel.Method)).Inc()
	return sel, nil
}

// InvalidateCandidates drops the cached candidate list for a key. Called by
// the learning pipeline after deactivating a template.
func (s *Selector) InvalidateCandidates(emotion, urgency string) {
	s.cache.invalidate(emotion + "|" + urgency)
}

func (s *Selector) candidates(ctx context.Context, emotion classification.Emotion, urgency classification.Urgency) ([]*store.Template, error) {
	key := string(emotion) + "|" + string(urgency)
	if cached, ok := s.cache.get(key); ok {
		metrics.RecordCacheOperation("template_candidates", "hit")
		return cached, nil
	}
	metrics.RecordCacheOperation("template_candidates", "miss")

	templates, err := s.store.ListActiveTemplates(ctx, string(emotion), string(urgency))
	if err != nil {
		return nil, err
	}
	s.cache.set(key, templates)
	return templates, nil
}

// trySelectByExperiment checks for a running prompt experiment and, when one
// exists, assigns a variant deterministically from the user identifier.
// Returns nil when no experiment applies.
func (s *Selector) trySelectByExperiment(ctx context.Context, candidates []*store.Template, userID string) *Selection {
	exp, err := s.store.GetRunningExperiment(ctx, promptExperimentType)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Warnf("[Selector] experiment lookup failed: %v", err)
			metrics.RecordComponentError("selector", "experiment_lookup")
		}
		return nil
	}

	variant := s.assignVariant(exp, userID)

	var chosen *store.Template
	if variant == "control" {
		chosen = controlTemplate(candidates)
	} else {
		chosen = bestNonControl(candidates)
	}
	if chosen == nil {
		// The experiment asks for a variant this key has no template for;
		// fall back to the bandit rather than skewing the experiment data.
		return nil
	}

	if err := s.store.IncrementVariantImpressions(ctx, exp.ID, variant); err != nil {
		logging.Warnf("[Selector] impression increment failed: %v", err)
		metrics.RecordComponentError("selector", "impression_increment")
	}

	logging.Debugf("[Selector] experiment=%s user=%q variant=%s template=%s",
		exp.ID, userID, variant, chosen.ID)
	return &Selection{
		Template:     chosen,
		Prompt:       chosen.SystemPrompt,
		FromLibrary:  true,
		Method:       MethodExperiment,
		ExperimentID: exp.ID,
		Variant:      variant,
	}
}

// assignVariant maps a user deterministically into a variant via FNV-1a over
// (experiment id, user id) modulo the traffic split. Anonymous users get a
// uniform random draw instead; they cannot be assigned stably.
func (s *Selector) assignVariant(exp *store.Experiment, userID string) string {
	if userID == "" {
		if s.roll() < exp.TrafficSplit {
			return "experiment"
		}
		return "control"
	}
	h := fnv.New32a()
	h.Write([]byte(exp.ID))
	h.Write([]byte(userID))
	bucket := float64(h.Sum32()%100) / 100.0
	if bucket < exp.TrafficSplit {
		return "experiment"
	}
	return "control"
}

// selectByBandit applies epsilon-greedy selection: explore uniformly with
// probability epsilon, otherwise exploit by a lower-confidence-bound score
// that discounts templates with sparse data.
func (s *Selector) selectByBandit(candidates []*store.Template) *Selection {
	if s.roll() < s.epsilon {
		chosen := candidates[s.intn(len(candidates))]
		return &Selection{
			Template:    chosen,
			Prompt:      chosen.SystemPrompt,
			FromLibrary: true,
			Method:      MethodExplore,
		}
	}

	best := candidates[0]
	bestScore := math.Inf(-1)
	for _, tpl := range candidates {
		score := lcbScore(tpl)
		if score > bestScore {
			bestScore = score
			best = tpl
		}
	}
	return &Selection{
		Template:    best,
		Prompt:      best.SystemPrompt,
		FromLibrary: true,
		Method:      MethodExploit,
	}
}

// lcbScore discounts the running average rating for templates with little
// history so sparse data cannot dominate selection.
func lcbScore(tpl *store.Template) float64 {
	avg := tpl.AvgRating()
	if tpl.TimesUsed < 5 {
		return avg * 0.8
	}
	return avg - 1/math.Sqrt(float64(tpl.TimesUsed))
}

func controlTemplate(candidates []*store.Template) *store.Template {
	for _, tpl := range candidates {
		if tpl.IsControl {
			return tpl
		}
	}
	return nil
}

func bestNonControl(candidates []*store.Template) *store.Template {
	var best *store.Template
	bestAvg := math.Inf(-1)
	for _, tpl := range candidates {
		if tpl.IsControl {
			continue
		}
		if avg := tpl.AvgRating(); avg > bestAvg {
			bestAvg = avg
			best = tpl
		}
	}
	return best
}

func (s *Selector) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
