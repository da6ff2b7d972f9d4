package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store. All counter updates
// happen under the store mutex, which gives the same no-lost-update guarantee
// the SQL backend gets from additive UPDATE statements.
type MemoryStore struct {
	mu sync.RWMutex

	templates    map[string]*Template
	experiments  map[string]*Experiment
	rules        map[string]*HumanizerRule
	chunks       []*KnowledgeChunk
	responseLogs map[string]*ResponseLog
	dailyMetrics map[string]*DailyMetrics
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:    make(map[string]*Template),
		experiments:  make(map[string]*Experiment),
		rules:        make(map[string]*HumanizerRule),
		responseLogs: make(map[string]*ResponseLog),
		dailyMetrics: make(map[string]*DailyMetrics),
	}
}

// CheckConnection verifies the store is usable.
func (m *MemoryStore) CheckConnection(_ context.Context) error {
	return nil
}

// Close releases resources held by the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = nil
	m.experiments = nil
	m.rules = nil
	m.chunks = nil
	m.responseLogs = nil
	m.dailyMetrics = nil
	return nil
}

// CreateTemplate stores a new template.
func (m *MemoryStore) CreateTemplate(_ context.Context, tpl *Template) error {
	if tpl == nil || tpl.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[tpl.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *tpl
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.templates[stored.ID] = &stored
	return nil
}

// GetTemplate retrieves a template by ID.
func (m *MemoryStore) GetTemplate(_ context.Context, id string) (*Template, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, exists := m.templates[id]
	if !exists {
		return nil, ErrNotFound
	}
	result := *tpl
	return &result, nil
}

// ListActiveTemplates returns active templates for an (emotion, urgency) key.
func (m *MemoryStore) ListActiveTemplates(_ context.Context, emotion, urgency string) ([]*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Template
	for _, tpl := range m.templates {
		if tpl.Active && tpl.Emotion == emotion && tpl.Urgency == urgency {
			result := *tpl
			out = append(out, &result)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddTemplateFeedback atomically applies one rating to a template.
func (m *MemoryStore) AddTemplateFeedback(_ context.Context, id string, rating int, positive, negative bool) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, exists := m.templates[id]
	if !exists {
		return ErrNotFound
	}
	tpl.TimesUsed++
	tpl.TotalRating += int64(rating)
	if positive {
		tpl.PositiveCount++
	}
	if negative {
		tpl.NegativeCount++
	}
	return nil
}

// DeactivateTemplate soft-deactivates a template.
func (m *MemoryStore) DeactivateTemplate(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, exists := m.templates[id]
	if !exists {
		return ErrNotFound
	}
	tpl.Active = false
	return nil
}

// CreateExperiment stores a new experiment.
func (m *MemoryStore) CreateExperiment(_ context.Context, exp *Experiment) error {
	if exp == nil || exp.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.experiments[exp.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *exp
	if stored.Variants == nil {
		stored.Variants = make(map[string]VariantStats)
	} else {
		variants := make(map[string]VariantStats, len(exp.Variants))
		for k, v := range exp.Variants {
			variants[k] = v
		}
		stored.Variants = variants
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.experiments[stored.ID] = &stored
	return nil
}

// GetExperiment retrieves an experiment by ID.
func (m *MemoryStore) GetExperiment(_ context.Context, id string) (*Experiment, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, exists := m.experiments[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyExperiment(exp), nil
}

// GetRunningExperiment returns the running experiment of the given type.
func (m *MemoryStore) GetRunningExperiment(_ context.Context, expType string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *Experiment
	for _, exp := range m.experiments {
		if exp.Type != expType || exp.Status != ExperimentRunning {
			continue
		}
		if newest == nil || exp.CreatedAt.After(newest.CreatedAt) {
			newest = exp
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return copyExperiment(newest), nil
}

// IncrementVariantImpressions atomically bumps a variant impression counter.
func (m *MemoryStore) IncrementVariantImpressions(_ context.Context, experimentID, variant string) error {
	if experimentID == "" || variant == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, exists := m.experiments[experimentID]
	if !exists {
		return ErrNotFound
	}
	stats := exp.Variants[variant]
	stats.Impressions++
	exp.Variants[variant] = stats
	return nil
}

// AddVariantConversion atomically records one conversion rating for a variant.
func (m *MemoryStore) AddVariantConversion(_ context.Context, experimentID, variant string, rating int) error {
	if experimentID == "" || variant == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, exists := m.experiments[experimentID]
	if !exists {
		return ErrNotFound
	}
	stats := exp.Variants[variant]
	stats.Conversions++
	stats.RatingSum += int64(rating)
	stats.AvgRating = float64(stats.RatingSum) / float64(stats.Conversions)
	exp.Variants[variant] = stats
	return nil
}

// CreateHumanizerRule stores a new rule.
func (m *MemoryStore) CreateHumanizerRule(_ context.Context, rule *HumanizerRule) error {
	if rule == nil || rule.Name == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.Name]; exists {
		return ErrAlreadyExists
	}
	stored := *rule
	stored.BestEmotions = append([]string(nil), rule.BestEmotions...)
	stored.WorstEmotions = append([]string(nil), rule.WorstEmotions...)
	m.rules[stored.Name] = &stored
	return nil
}

// GetHumanizerRule retrieves a rule by name.
func (m *MemoryStore) GetHumanizerRule(_ context.Context, name string) (*HumanizerRule, error) {
	if name == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, exists := m.rules[name]
	if !exists {
		return nil, ErrNotFound
	}
	return copyRule(rule), nil
}

// ListHumanizerRules returns all rules.
func (m *MemoryStore) ListHumanizerRules(_ context.Context) ([]*HumanizerRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*HumanizerRule, 0, len(m.rules))
	for _, rule := range m.rules {
		out = append(out, copyRule(rule))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ApplyRuleFeedback atomically applies one additive feedback update to a rule.
func (m *MemoryStore) ApplyRuleFeedback(_ context.Context, name string, fb RuleFeedback) error {
	if name == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, exists := m.rules[name]
	if !exists {
		return ErrNotFound
	}
	rule.LearnedWeight = clamp(rule.LearnedWeight+fb.WeightDelta, 0, 2)
	rule.Confidence = clamp(rule.Confidence+fb.ConfidenceDelta, 0, 1)
	rule.TimesApplied++
	if fb.Positive {
		rule.PositiveCorrelation++
	} else {
		rule.NegativeCorrelation++
	}
	if fb.AddBestEmotion != "" {
		rule.BestEmotions = appendUnique(rule.BestEmotions, fb.AddBestEmotion)
		rule.WorstEmotions = removeString(rule.WorstEmotions, fb.AddBestEmotion)
	}
	if fb.AddWorstEmotion != "" {
		rule.WorstEmotions = appendUnique(rule.WorstEmotions, fb.AddWorstEmotion)
		rule.BestEmotions = removeString(rule.BestEmotions, fb.AddWorstEmotion)
	}
	return nil
}

// CreateKnowledgeChunk stores a new chunk.
func (m *MemoryStore) CreateKnowledgeChunk(_ context.Context, chunk *KnowledgeChunk) error {
	if chunk == nil || chunk.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.chunks {
		if existing.ID == chunk.ID {
			return ErrAlreadyExists
		}
	}
	stored := *chunk
	stored.Embedding = append([]float32(nil), chunk.Embedding...)
	m.chunks = append(m.chunks, &stored)
	return nil
}

// ListKnowledgeChunks returns all chunks.
func (m *MemoryStore) ListKnowledgeChunks(_ context.Context) ([]*KnowledgeChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*KnowledgeChunk, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		result := *chunk
		out = append(out, &result)
	}
	return out, nil
}

// SearchChunksByKeywords returns chunks containing any of the given words.
func (m *MemoryStore) SearchChunksByKeywords(_ context.Context, words []string, limit int) ([]*KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*KnowledgeChunk
	for _, chunk := range m.chunks {
		content := strings.ToLower(chunk.Content)
		for _, word := range words {
			if word == "" {
				continue
			}
			if strings.Contains(content, strings.ToLower(word)) {
				result := *chunk
				out = append(out, &result)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateResponseLog stores a new response log.
func (m *MemoryStore) CreateResponseLog(_ context.Context, log *ResponseLog) error {
	if log == nil || log.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.responseLogs[log.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *log
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.responseLogs[stored.ID] = &stored
	return nil
}

// GetResponseLog retrieves a response log by ID.
func (m *MemoryStore) GetResponseLog(_ context.Context, id string) (*ResponseLog, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	log, exists := m.responseLogs[id]
	if !exists {
		return nil, ErrNotFound
	}
	result := *log
	return &result, nil
}

// SetResponseFeedback records the user rating on a response log.
func (m *MemoryStore) SetResponseFeedback(_ context.Context, id string, rating int) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log, exists := m.responseLogs[id]
	if !exists {
		return ErrNotFound
	}
	log.FeedbackRating = rating
	return nil
}

// MarkResponseProcessed flips the learning_processed flag exactly once.
func (m *MemoryStore) MarkResponseProcessed(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log, exists := m.responseLogs[id]
	if !exists {
		return ErrNotFound
	}
	if log.LearningProcessed {
		return ErrAlreadyProcessed
	}
	log.LearningProcessed = true
	return nil
}

// ListResponseLogsInRange returns logs created within [start, end).
func (m *MemoryStore) ListResponseLogsInRange(_ context.Context, start, end time.Time) ([]*ResponseLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ResponseLog
	for _, log := range m.responseLogs {
		if log.CreatedAt.Before(start) || !log.CreatedAt.Before(end) {
			continue
		}
		result := *log
		out = append(out, &result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpsertDailyMetrics stores the aggregate row for its date.
func (m *MemoryStore) UpsertDailyMetrics(_ context.Context, dm *DailyMetrics) error {
	if dm == nil || dm.Date == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *dm
	m.dailyMetrics[stored.Date] = &stored
	return nil
}

// GetDailyMetrics retrieves the aggregate row for a date.
func (m *MemoryStore) GetDailyMetrics(_ context.Context, date string) (*DailyMetrics, error) {
	if date == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	dm, exists := m.dailyMetrics[date]
	if !exists {
		return nil, ErrNotFound
	}
	result := *dm
	return &result, nil
}

func copyExperiment(exp *Experiment) *Experiment {
	result := *exp
	result.Variants = make(map[string]VariantStats, len(exp.Variants))
	for k, v := range exp.Variants {
		result.Variants[k] = v
	}
	return &result
}

func copyRule(rule *HumanizerRule) *HumanizerRule {
	result := *rule
	result.BestEmotions = append([]string(nil), rule.BestEmotions...)
	result.WorstEmotions = append([]string(nil), rule.WorstEmotions...)
	return &result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
