// Package store provides storage interfaces and implementations for the
// adaptive response engine. It supports pluggable backends including memory
// and SQLite for templates, experiments, humanizer rules, knowledge chunks,
// response logs and daily metrics.
package store

import (
	"context"
	"time"
)

// Template is a curated response template keyed by (emotion, urgency).
// Running aggregates are mutated exclusively through AddTemplateFeedback.
type Template struct {
	ID            string    `json:"id"`
	Emotion       string    `json:"emotion"`
	Urgency       string    `json:"urgency"`
	Tone          string    `json:"tone"`
	SystemPrompt  string    `json:"system_prompt"`
	IsControl     bool      `json:"is_control"`
	TimesUsed     int64     `json:"times_used"`
	TotalRating   int64     `json:"total_rating"`
	PositiveCount int64     `json:"positive_count"`
	NegativeCount int64     `json:"negative_count"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// AvgRating returns the running average rating, or 0 when unused.
func (t *Template) AvgRating() float64 {
	if t.TimesUsed == 0 {
		return 0
	}
	return float64(t.TotalRating) / float64(t.TimesUsed)
}

// ExperimentStatus enumerates experiment lifecycle states.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "draft"
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentCompleted ExperimentStatus = "completed"
)

// VariantStats holds per-variant counters for an A/B experiment.
type VariantStats struct {
	Impressions int64   `json:"impressions"`
	Conversions int64   `json:"conversions"`
	RatingSum   int64   `json:"rating_sum"`
	AvgRating   float64 `json:"avg_rating"`
}

// Experiment is an A/B experiment with deterministic variant assignment.
type Experiment struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Status       ExperimentStatus        `json:"status"`
	TrafficSplit float64                 `json:"traffic_split"`
	Variants     map[string]VariantStats `json:"variants"`
	CreatedAt    time.Time               `json:"created_at"`
}

// HumanizerRule holds the learned weight state for one humanizer rule.
// LearnedWeight and Confidence are mutated only through ApplyRuleFeedback.
type HumanizerRule struct {
	Name                string   `json:"name"`
	Type                string   `json:"type"` // removal, contraction, marker, emoji
	BaseWeight          float64  `json:"base_weight"`
	LearnedWeight       float64  `json:"learned_weight"`
	Confidence          float64  `json:"confidence"`
	BestEmotions        []string `json:"best_emotions"`
	WorstEmotions       []string `json:"worst_emotions"`
	TimesApplied        int64    `json:"times_applied"`
	PositiveCorrelation int64    `json:"positive_correlation"`
	NegativeCorrelation int64    `json:"negative_correlation"`
}

// RuleFeedback is an additive update applied atomically to a HumanizerRule.
// Weight and confidence deltas are clamped to their valid ranges by the store.
type RuleFeedback struct {
	WeightDelta     float64
	ConfidenceDelta float64
	Positive        bool
	AddBestEmotion  string
	AddWorstEmotion string
}

// KnowledgeChunk is one embedded passage of a source document.
// Chunks are created at ingestion time and read-only afterwards.
type KnowledgeChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	Position   int       `json:"position"`
	Page       int       `json:"page,omitempty"`
	Section    string    `json:"section,omitempty"`
}

// ChunkRef records one retrieved chunk and its similarity on a response log.
type ChunkRef struct {
	ChunkID    string  `json:"chunk_id"`
	Similarity float64 `json:"similarity"`
}

// ResponseLog is one record per generated reply. Created at generation time;
// LearningProcessed flips false to true exactly once, after all learning
// updates for its feedback event succeed.
type ResponseLog struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Input string `json:"input"`

	Emotion    string   `json:"emotion"`
	Intensity  float64  `json:"intensity"`
	Urgency    string   `json:"urgency"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
	ModelUsed  string   `json:"model_used"`

	TemplateID   string `json:"template_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	Variant      string `json:"variant,omitempty"`

	RetrievedChunks []ChunkRef `json:"retrieved_chunks,omitempty"`

	RawReply       string `json:"raw_reply"`
	HumanizedReply string `json:"humanized_reply"`

	RoboticnessBefore float64  `json:"roboticness_before"`
	RoboticnessAfter  float64  `json:"roboticness_after"`
	AppliedRules      []string `json:"applied_rules,omitempty"`

	StageLatencyMs map[string]int64 `json:"stage_latency_ms,omitempty"`

	CrisisFlag        bool `json:"crisis_flag"`
	FeedbackRating    int  `json:"feedback_rating,omitempty"` // 0 means unrated
	LearningProcessed bool `json:"learning_processed"`
}

// DailyMetrics is one aggregate row per day. Upserts are idempotent per date.
type DailyMetrics struct {
	Date                 string         `json:"date"` // YYYY-MM-DD
	TotalResponses       int64          `json:"total_responses"`
	EmotionDistribution  map[string]int `json:"emotion_distribution"`
	UrgencyDistribution  map[string]int `json:"urgency_distribution"`
	AvgConfidence        float64        `json:"avg_confidence"`
	AvgRoboticnessBefore float64        `json:"avg_roboticness_before"`
	AvgRoboticnessAfter  float64        `json:"avg_roboticness_after"`
	ImprovementPct       float64        `json:"improvement_pct"`
	AvgRating            float64        `json:"avg_rating"`
	RatedCount           int64          `json:"rated_count"`
	CrisisCount          int64          `json:"crisis_count"`
}

// Store defines the persistence contract for the response engine.
// Implementations must be thread-safe, and all counter mutations must be
// applied as atomic additive updates keyed by id, never read-modify-write.
type Store interface {
	// CreateTemplate stores a new template.
	CreateTemplate(ctx context.Context, tpl *Template) error

	// GetTemplate retrieves a template by ID. Returns ErrNotFound if missing.
	GetTemplate(ctx context.Context, id string) (*Template, error)

	// ListActiveTemplates returns active templates for an (emotion, urgency) key.
	// An empty result is a valid state, not an error.
	ListActiveTemplates(ctx context.Context, emotion, urgency string) ([]*Template, error)

	// AddTemplateFeedback atomically applies one rating to a template's
	// running aggregates.
	AddTemplateFeedback(ctx context.Context, id string, rating int, positive, negative bool) error

	// DeactivateTemplate soft-deactivates a template.
	DeactivateTemplate(ctx context.Context, id string) error

	// CreateExperiment stores a new experiment.
	CreateExperiment(ctx context.Context, exp *Experiment) error

	// GetExperiment retrieves an experiment by ID.
	GetExperiment(ctx context.Context, id string) (*Experiment, error)

	// GetRunningExperiment returns the running experiment of the given type,
	// or ErrNotFound when none is running.
	GetRunningExperiment(ctx context.Context, expType string) (*Experiment, error)

	// IncrementVariantImpressions atomically bumps a variant impression counter.
	IncrementVariantImpressions(ctx context.Context, experimentID, variant string) error

	// AddVariantConversion atomically records one conversion rating for a
	// variant and recomputes its running average.
	AddVariantConversion(ctx context.Context, experimentID, variant string, rating int) error

	// CreateHumanizerRule stores a new rule.
	CreateHumanizerRule(ctx context.Context, rule *HumanizerRule) error

	// GetHumanizerRule retrieves a rule by name.
	GetHumanizerRule(ctx context.Context, name string) (*HumanizerRule, error)

	// ListHumanizerRules returns all rules.
	ListHumanizerRules(ctx context.Context) ([]*HumanizerRule, error)

	// ApplyRuleFeedback atomically applies one additive feedback update to a
	// rule. LearnedWeight is clamped to [0,2] and Confidence to [0,1].
	ApplyRuleFeedback(ctx context.Context, name string, fb RuleFeedback) error

	// CreateKnowledgeChunk stores a new chunk.
	CreateKnowledgeChunk(ctx context.Context, chunk *KnowledgeChunk) error

	// ListKnowledgeChunks returns all chunks.
	ListKnowledgeChunks(ctx context.Context) ([]*KnowledgeChunk, error)

	// SearchChunksByKeywords returns chunks whose content contains any of the
	// given words, case-insensitively, up to limit.
	SearchChunksByKeywords(ctx context.Context, words []string, limit int) ([]*KnowledgeChunk, error)

	// CreateResponseLog stores a new response log.
	CreateResponseLog(ctx context.Context, log *ResponseLog) error

	// GetResponseLog retrieves a response log by ID.
	GetResponseLog(ctx context.Context, id string) (*ResponseLog, error)

	// SetResponseFeedback records the user rating on a response log.
	SetResponseFeedback(ctx context.Context, id string, rating int) error

	// MarkResponseProcessed flips the learning_processed flag. Returns
	// ErrAlreadyProcessed when the flag was already set.
	MarkResponseProcessed(ctx context.Context, id string) error

	// ListResponseLogsInRange returns logs created within [start, end).
	ListResponseLogsInRange(ctx context.Context, start, end time.Time) ([]*ResponseLog, error)

	// UpsertDailyMetrics stores the aggregate row for its date, replacing any
	// existing row for the same date.
	UpsertDailyMetrics(ctx context.Context, dm *DailyMetrics) error

	// GetDailyMetrics retrieves the aggregate row for a date, or ErrNotFound.
	GetDailyMetrics(ctx context.Context, date string) (*DailyMetrics, error)

	// CheckConnection verifies the backend is reachable.
	CheckConnection(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
