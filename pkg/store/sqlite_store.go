package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// SQLiteStore implements Store on a SQLite database. Counter mutations are
// expressed as additive UPDATE statements so concurrent feedback events never
// lose updates to the same row.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	emotion TEXT NOT NULL,
	urgency TEXT NOT NULL,
	tone TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL,
	is_control INTEGER NOT NULL DEFAULT 0,
	times_used INTEGER NOT NULL DEFAULT 0,
	total_rating INTEGER NOT NULL DEFAULT 0,
	positive_count INTEGER NOT NULL DEFAULT 0,
	negative_count INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_templates_key ON templates(emotion, urgency, active);

CREATE TABLE IF NOT EXISTS experiments (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	traffic_split REAL NOT NULL DEFAULT 0.5,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment_variants (
	experiment_id TEXT NOT NULL,
	variant TEXT NOT NULL,
	impressions INTEGER NOT NULL DEFAULT 0,
	conversions INTEGER NOT NULL DEFAULT 0,
	rating_sum INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (experiment_id, variant)
);

CREATE TABLE IF NOT EXISTS humanizer_rules (
	name TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	base_weight REAL NOT NULL,
	learned_weight REAL NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	best_emotions TEXT NOT NULL DEFAULT '[]',
	worst_emotions TEXT NOT NULL DEFAULT '[]',
	times_applied INTEGER NOT NULL DEFAULT 0,
	positive_correlation INTEGER NOT NULL DEFAULT 0,
	negative_correlation INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding TEXT NOT NULL DEFAULT '[]',
	position INTEGER NOT NULL DEFAULT 0,
	page INTEGER NOT NULL DEFAULT 0,
	section TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS response_logs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	input TEXT NOT NULL,
	emotion TEXT NOT NULL,
	intensity REAL NOT NULL,
	urgency TEXT NOT NULL,
	confidence REAL NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	model_used TEXT NOT NULL DEFAULT '',
	template_id TEXT NOT NULL DEFAULT '',
	experiment_id TEXT NOT NULL DEFAULT '',
	variant TEXT NOT NULL DEFAULT '',
	retrieved_chunks TEXT NOT NULL DEFAULT '[]',
	raw_reply TEXT NOT NULL DEFAULT '',
	humanized_reply TEXT NOT NULL DEFAULT '',
	roboticness_before REAL NOT NULL DEFAULT 0,
	roboticness_after REAL NOT NULL DEFAULT 0,
	applied_rules TEXT NOT NULL DEFAULT '[]',
	stage_latency_ms TEXT NOT NULL DEFAULT '{}',
	crisis_flag INTEGER NOT NULL DEFAULT 0,
	feedback_rating INTEGER NOT NULL DEFAULT 0,
	learning_processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_response_logs_created ON response_logs(created_at);

CREATE TABLE IF NOT EXISTS daily_metrics (
	date TEXT PRIMARY KEY,
	total_responses INTEGER NOT NULL DEFAULT 0,
	emotion_distribution TEXT NOT NULL DEFAULT '{}',
	urgency_distribution TEXT NOT NULL DEFAULT '{}',
	avg_confidence REAL NOT NULL DEFAULT 0,
	avg_roboticness_before REAL NOT NULL DEFAULT 0,
	avg_roboticness_after REAL NOT NULL DEFAULT 0,
	improvement_pct REAL NOT NULL DEFAULT 0,
	avg_rating REAL NOT NULL DEFAULT 0,
	rated_count INTEGER NOT NULL DEFAULT 0,
	crisis_count INTEGER NOT NULL DEFAULT 0
);
`

// NewSQLiteStore opens (and if needed bootstraps) a SQLite-backed store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap sqlite schema: %w", err)
	}

	logging.Infof("SQLite store ready at %s", path)
	return &SQLiteStore{db: db}, nil
}

// CheckConnection verifies the database is reachable.
func (s *SQLiteStore) CheckConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTemplate stores a new template.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *Template) error {
	if tpl == nil || tpl.ID == "" {
		return ErrInvalidInput
	}
	createdAt := tpl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, emotion, urgency, tone, system_prompt, is_control,
			times_used, total_rating, positive_count, negative_count, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.Emotion, tpl.Urgency, tpl.Tone, tpl.SystemPrompt, boolToInt(tpl.IsControl),
		tpl.TimesUsed, tpl.TotalRating, tpl.PositiveCount, tpl.NegativeCount, boolToInt(tpl.Active), createdAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, emotion, urgency, tone, system_prompt, is_control,
			times_used, total_rating, positive_count, negative_count, active, created_at
		FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// ListActiveTemplates returns active templates for an (emotion, urgency) key.
func (s *SQLiteStore) ListActiveTemplates(ctx context.Context, emotion, urgency string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, emotion, urgency, tone, system_prompt, is_control,
			times_used, total_rating, positive_count, negative_count, active, created_at
		FROM templates WHERE emotion = ? AND urgency = ? AND active = 1 ORDER BY id`, emotion, urgency)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// AddTemplateFeedback atomically applies one rating to a template.
func (s *SQLiteStore) AddTemplateFeedback(ctx context.Context, id string, rating int, positive, negative bool) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates SET
			times_used = times_used + 1,
			total_rating = total_rating + ?,
			positive_count = positive_count + ?,
			negative_count = negative_count + ?
		WHERE id = ?`,
		rating, boolToInt(positive), boolToInt(negative), id)
	if err != nil {
		return fmt.Errorf("failed to update template stats: %w", err)
	}
	return requireRow(res)
}

// DeactivateTemplate soft-deactivates a template.
func (s *SQLiteStore) DeactivateTemplate(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	return requireRow(res)
}

// CreateExperiment stores a new experiment with its variants.
func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	if exp == nil || exp.ID == "" {
		return ErrInvalidInput
	}
	createdAt := exp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO experiments (id, type, status, traffic_split, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		exp.ID, exp.Type, string(exp.Status), exp.TrafficSplit, createdAt); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	for variant, stats := range exp.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO experiment_variants (experiment_id, variant, impressions, conversions, rating_sum)
			VALUES (?, ?, ?, ?, ?)`,
			exp.ID, variant, stats.Impressions, stats.Conversions, stats.RatingSum); err != nil {
			return fmt.Errorf("failed to insert experiment variant: %w", err)
		}
	}
	return tx.Commit()
}

// GetExperiment retrieves an experiment by ID.
func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, traffic_split, created_at FROM experiments WHERE id = ?`, id)
	return s.scanExperiment(ctx, row)
}

// GetRunningExperiment returns the newest running experiment of the given type.
func (s *SQLiteStore) GetRunningExperiment(ctx context.Context, expType string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, traffic_split, created_at FROM experiments
		WHERE type = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		expType, string(ExperimentRunning))
	return s.scanExperiment(ctx, row)
}

// IncrementVariantImpressions atomically bumps a variant impression counter.
func (s *SQLiteStore) IncrementVariantImpressions(ctx context.Context, experimentID, variant string) error {
	if experimentID == "" || variant == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_variants (experiment_id, variant, impressions)
		VALUES (?, ?, 1)
		ON CONFLICT(experiment_id, variant) DO UPDATE SET impressions = impressions + 1`,
		experimentID, variant)
	if err != nil {
		return fmt.Errorf("failed to increment impressions: %w", err)
	}
	return nil
}

// AddVariantConversion atomically records one conversion rating for a variant.
func (s *SQLiteStore) AddVariantConversion(ctx context.Context, experimentID, variant string, rating int) error {
	if experimentID == "" || variant == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_variants (experiment_id, variant, conversions, rating_sum)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(experiment_id, variant) DO UPDATE SET
			conversions = conversions + 1,
			rating_sum = rating_sum + excluded.rating_sum`,
		experimentID, variant, rating)
	if err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

// CreateHumanizerRule stores a new rule.
func (s *SQLiteStore) CreateHumanizerRule(ctx context.Context, rule *HumanizerRule) error {
	if rule == nil || rule.Name == "" {
		return ErrInvalidInput
	}
	best, _ := json.Marshal(rule.BestEmotions)
	worst, _ := json.Marshal(rule.WorstEmotions)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO humanizer_rules (name, type, base_weight, learned_weight, confidence,
			best_emotions, worst_emotions, times_applied, positive_correlation, negative_correlation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Type, rule.BaseWeight, rule.LearnedWeight, rule.Confidence,
		string(best), string(worst), rule.TimesApplied, rule.PositiveCorrelation, rule.NegativeCorrelation)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert humanizer rule: %w", err)
	}
	return nil
}

// GetHumanizerRule retrieves a rule by name.
func (s *SQLiteStore) GetHumanizerRule(ctx context.Context, name string) (*HumanizerRule, error) {
	if name == "" {
		return nil, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT name, type, base_weight, learned_weight, confidence, best_emotions,
			worst_emotions, times_applied, positive_correlation, negative_correlation
		FROM humanizer_rules WHERE name = ?`, name)
	return scanRule(row)
}

// ListHumanizerRules returns all rules.
func (s *SQLiteStore) ListHumanizerRules(ctx context.Context) ([]*HumanizerRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, base_weight, learned_weight, confidence, best_emotions,
			worst_emotions, times_applied, positive_correlation, negative_correlation
		FROM humanizer_rules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list humanizer rules: %w", err)
	}
	defer rows.Close()

	var out []*HumanizerRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ApplyRuleFeedback atomically applies one additive feedback update to a rule.
// Weight and confidence arithmetic happens inside the UPDATE so concurrent
// feedback events for the same rule cannot drop each other's deltas. Emotion
// set membership is maintained in the same transaction.
func (s *SQLiteStore) ApplyRuleFeedback(ctx context.Context, name string, fb RuleFeedback) error {
	if name == "" {
		return ErrInvalidID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pos, neg := 0, 1
	if fb.Positive {
		pos, neg = 1, 0
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE humanizer_rules SET
			learned_weight = MIN(2.0, MAX(0.0, learned_weight + ?)),
			confidence = MIN(1.0, MAX(0.0, confidence + ?)),
			times_applied = times_applied + 1,
			positive_correlation = positive_correlation + ?,
			negative_correlation = negative_correlation + ?
		WHERE name = ?`,
		fb.WeightDelta, fb.ConfidenceDelta, pos, neg, name)
	if err != nil {
		return fmt.Errorf("failed to apply rule feedback: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if fb.AddBestEmotion != "" || fb.AddWorstEmotion != "" {
		var bestRaw, worstRaw string
		if err := tx.QueryRowContext(ctx,
			`SELECT best_emotions, worst_emotions FROM humanizer_rules WHERE name = ?`, name,
		).Scan(&bestRaw, &worstRaw); err != nil {
			return fmt.Errorf("failed to read rule emotion sets: %w", err)
		}
		var best, worst []string
		_ = json.Unmarshal([]byte(bestRaw), &best)
		_ = json.Unmarshal([]byte(worstRaw), &worst)
		if fb.AddBestEmotion != "" {
			best = appendUnique(best, fb.AddBestEmotion)
			worst = removeString(worst, fb.AddBestEmotion)
		}
		if fb.AddWorstEmotion != "" {
			worst = appendUnique(worst, fb.AddWorstEmotion)
			best = removeString(best, fb.AddWorstEmotion)
		}
		bestJSON, _ := json.Marshal(best)
		worstJSON, _ := json.Marshal(worst)
		if _, err := tx.ExecContext(ctx,
			`UPDATE humanizer_rules SET best_emotions = ?, worst_emotions = ? WHERE name = ?`,
			string(bestJSON), string(worstJSON), name); err != nil {
			return fmt.Errorf("failed to update rule emotion sets: %w", err)
		}
	}
	return tx.Commit()
}

// CreateKnowledgeChunk stores a new chunk.
func (s *SQLiteStore) CreateKnowledgeChunk(ctx context.Context, chunk *KnowledgeChunk) error {
	if chunk == nil || chunk.ID == "" {
		return ErrInvalidInput
	}
	embedding, _ := json.Marshal(chunk.Embedding)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_chunks (id, document_id, content, embedding, position, page, section)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, chunk.Content, string(embedding), chunk.Position, chunk.Page, chunk.Section)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert knowledge chunk: %w", err)
	}
	return nil
}

// ListKnowledgeChunks returns all chunks.
func (s *SQLiteStore) ListKnowledgeChunks(ctx context.Context) ([]*KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, embedding, position, page, section
		FROM knowledge_chunks ORDER BY document_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// SearchChunksByKeywords returns chunks containing any of the given words.
func (s *SQLiteStore) SearchChunksByKeywords(ctx context.Context, words []string, limit int) ([]*KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	var clauses []string
	var args []interface{}
	for _, word := range words {
		if word == "" {
			continue
		}
		clauses = append(clauses, "content LIKE ?")
		args = append(args, "%"+word+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, content, embedding, position, page, section
		FROM knowledge_chunks WHERE %s LIMIT ?`, strings.Join(clauses, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// CreateResponseLog stores a new response log.
func (s *SQLiteStore) CreateResponseLog(ctx context.Context, log *ResponseLog) error {
	if log == nil || log.ID == "" {
		return ErrInvalidInput
	}
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	keywords, _ := json.Marshal(log.Keywords)
	chunks, _ := json.Marshal(log.RetrievedChunks)
	rules, _ := json.Marshal(log.AppliedRules)
	latency, _ := json.Marshal(log.StageLatencyMs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_logs (id, created_at, input, emotion, intensity, urgency, confidence,
			keywords, model_used, template_id, experiment_id, variant, retrieved_chunks,
			raw_reply, humanized_reply, roboticness_before, roboticness_after, applied_rules,
			stage_latency_ms, crisis_flag, feedback_rating, learning_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, createdAt, log.Input, log.Emotion, log.Intensity, log.Urgency, log.Confidence,
		string(keywords), log.ModelUsed, log.TemplateID, log.ExperimentID, log.Variant, string(chunks),
		log.RawReply, log.HumanizedReply, log.RoboticnessBefore, log.RoboticnessAfter, string(rules),
		string(latency), boolToInt(log.CrisisFlag), log.FeedbackRating, boolToInt(log.LearningProcessed))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert response log: %w", err)
	}
	return nil
}

// GetResponseLog retrieves a response log by ID.
func (s *SQLiteStore) GetResponseLog(ctx context.Context, id string) (*ResponseLog, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, responseLogSelect+` WHERE id = ?`, id)
	return scanResponseLog(row)
}

// SetResponseFeedback records the user rating on a response log.
func (s *SQLiteStore) SetResponseFeedback(ctx context.Context, id string, rating int) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx, `UPDATE response_logs SET feedback_rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return fmt.Errorf("failed to set feedback rating: %w", err)
	}
	return requireRow(res)
}

// MarkResponseProcessed flips the learning_processed flag exactly once.
func (s *SQLiteStore) MarkResponseProcessed(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE response_logs SET learning_processed = 1 WHERE id = ? AND learning_processed = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to mark response processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetResponseLog(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyProcessed
	}
	return nil
}

// ListResponseLogsInRange returns logs created within [start, end).
func (s *SQLiteStore) ListResponseLogsInRange(ctx context.Context, start, end time.Time) ([]*ResponseLog, error) {
	rows, err := s.db.QueryContext(ctx,
		responseLogSelect+` WHERE created_at >= ? AND created_at < ? ORDER BY created_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list response logs: %w", err)
	}
	defer rows.Close()

	var out []*ResponseLog
	for rows.Next() {
		log, err := scanResponseLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// UpsertDailyMetrics stores the aggregate row for its date.
func (s *SQLiteStore) UpsertDailyMetrics(ctx context.Context, dm *DailyMetrics) error {
	if dm == nil || dm.Date == "" {
		return ErrInvalidInput
	}
	emotions, _ := json.Marshal(dm.EmotionDistribution)
	urgencies, _ := json.Marshal(dm.UrgencyDistribution)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (date, total_responses, emotion_distribution, urgency_distribution,
			avg_confidence, avg_roboticness_before, avg_roboticness_after, improvement_pct,
			avg_rating, rated_count, crisis_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_responses = excluded.total_responses,
			emotion_distribution = excluded.emotion_distribution,
			urgency_distribution = excluded.urgency_distribution,
			avg_confidence = excluded.avg_confidence,
			avg_roboticness_before = excluded.avg_roboticness_before,
			avg_roboticness_after = excluded.avg_roboticness_after,
			improvement_pct = excluded.improvement_pct,
			avg_rating = excluded.avg_rating,
			rated_count = excluded.rated_count,
			crisis_count = excluded.crisis_count`,
		dm.Date, dm.TotalResponses, string(emotions), string(urgencies),
		dm.AvgConfidence, dm.AvgRoboticnessBefore, dm.AvgRoboticnessAfter, dm.ImprovementPct,
		dm.AvgRating, dm.RatedCount, dm.CrisisCount)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", err)
	}
	return nil
}

// GetDailyMetrics retrieves the aggregate row for a date.
func (s *SQLiteStore) GetDailyMetrics(ctx context.Context, date string) (*DailyMetrics, error) {
	if date == "" {
		return nil, ErrInvalidID
	}
	dm := &DailyMetrics{}
	var emotions, urgencies string
	err := s.db.QueryRowContext(ctx, `
		SELECT date, total_responses, emotion_distribution, urgency_distribution,
			avg_confidence, avg_roboticness_before, avg_roboticness_after, improvement_pct,
			avg_rating, rated_count, crisis_count
		FROM daily_metrics WHERE date = ?`, date).Scan(
		&dm.Date, &dm.TotalResponses, &emotions, &urgencies,
		&dm.AvgConfidence, &dm.AvgRoboticnessBefore, &dm.AvgRoboticnessAfter, &dm.ImprovementPct,
		&dm.AvgRating, &dm.RatedCount, &dm.CrisisCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily metrics: %w", err)
	}
	_ = json.Unmarshal([]byte(emotions), &dm.EmotionDistribution)
	_ = json.Unmarshal([]byte(urgencies), &dm.UrgencyDistribution)
	return dm, nil
}

const responseLogSelect = `
	SELECT id, created_at, input, emotion, intensity, urgency, confidence, keywords, model_used,
		template_id, experiment_id, variant, retrieved_chunks, raw_reply, humanized_reply,
		roboticness_before, roboticness_after, applied_rules, stage_latency_ms,
		crisis_flag, feedback_rating, learning_processed
	FROM response_logs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	tpl := &Template{}
	var isControl, active int
	err := row.Scan(&tpl.ID, &tpl.Emotion, &tpl.Urgency, &tpl.Tone, &tpl.SystemPrompt, &isControl,
		&tpl.TimesUsed, &tpl.TotalRating, &tpl.PositiveCount, &tpl.NegativeCount, &active, &tpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	tpl.IsControl = isControl != 0
	tpl.Active = active != 0
	return tpl, nil
}

func (s *SQLiteStore) scanExperiment(ctx context.Context, row rowScanner) (*Experiment, error) {
	exp := &Experiment{Variants: make(map[string]VariantStats)}
	var status string
	err := row.Scan(&exp.ID, &exp.Type, &status, &exp.TrafficSplit, &exp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}
	exp.Status = ExperimentStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant, impressions, conversions, rating_sum
		FROM experiment_variants WHERE experiment_id = ?`, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var variant string
		var stats VariantStats
		if err := rows.Scan(&variant, &stats.Impressions, &stats.Conversions, &stats.RatingSum); err != nil {
			return nil, fmt.Errorf("failed to scan experiment variant: %w", err)
		}
		if stats.Conversions > 0 {
			stats.AvgRating = float64(stats.RatingSum) / float64(stats.Conversions)
		}
		exp.Variants[variant] = stats
	}
	return exp, rows.Err()
}

func scanRule(row rowScanner) (*HumanizerRule, error) {
	rule := &HumanizerRule{}
	var best, worst string
	err := row.Scan(&rule.Name, &rule.Type, &rule.BaseWeight, &rule.LearnedWeight, &rule.Confidence,
		&best, &worst, &rule.TimesApplied, &rule.PositiveCorrelation, &rule.NegativeCorrelation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan humanizer rule: %w", err)
	}
	_ = json.Unmarshal([]byte(best), &rule.BestEmotions)
	_ = json.Unmarshal([]byte(worst), &rule.WorstEmotions)
	return rule, nil
}

func scanResponseLog(row rowScanner) (*ResponseLog, error) {
	log := &ResponseLog{}
	var keywords, chunks, rules, latency string
	var crisis, processed int
	err := row.Scan(&log.ID, &log.CreatedAt, &log.Input, &log.Emotion, &log.Intensity, &log.Urgency,
		&log.Confidence, &keywords, &log.ModelUsed, &log.TemplateID, &log.ExperimentID, &log.Variant,
		&chunks, &log.RawReply, &log.HumanizedReply, &log.RoboticnessBefore, &log.RoboticnessAfter,
		&rules, &latency, &crisis, &log.FeedbackRating, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan response log: %w", err)
	}
	_ = json.Unmarshal([]byte(keywords), &log.Keywords)
	_ = json.Unmarshal([]byte(chunks), &log.RetrievedChunks)
	_ = json.Unmarshal([]byte(rules), &log.AppliedRules)
	_ = json.Unmarshal([]byte(latency), &log.StageLatencyMs)
	log.CrisisFlag = crisis != 0
	log.LearningProcessed = processed != 0
	return log, nil
}

func collectChunks(rows *sql.Rows) ([]*KnowledgeChunk, error) {
	var out []*KnowledgeChunk
	for rows.Next() {
		chunk := &KnowledgeChunk{}
		var embedding string
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &embedding,
			&chunk.Position, &chunk.Page, &chunk.Section); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge chunk: %w", err)
		}
		_ = json.Unmarshal([]byte(embedding), &chunk.Embedding)
		out = append(out, chunk)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
