package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/humanizer"
	"github.com/Russete77/migadigital/pkg/learning"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
	"github.com/Russete77/migadigital/pkg/retrieval"
	"github.com/Russete77/migadigital/pkg/selection"
	"github.com/Russete77/migadigital/pkg/store"
)

// Request is one inbound user message with its conversation so far.
type Request struct {
	Message string     `json:"message"`
	History []ChatTurn `json:"history,omitempty"`
	UserID  string     `json:"user_id,omitempty"`
}

// Response is the generated reply plus the metadata callers need to render
// it and to tie later feedback back to this generation.
type Response struct {
	ID    string `json:"id"`
	Reply string `json:"reply"`

	Emotion    string  `json:"emotion"`
	Intensity  float64 `json:"intensity"`
	Urgency    string  `json:"urgency"`
	Confidence float64 `json:"confidence"`
	Crisis     bool    `json:"crisis"`

	TemplateID      string `json:"template_id,omitempty"`
	SelectionMethod string `json:"selection_method"`
	ExperimentID    string `json:"experiment_id,omitempty"`
	Variant         string `json:"variant,omitempty"`

	KnowledgeUsed bool `json:"knowledge_used"`

	RoboticnessBefore float64  `json:"roboticness_before"`
	RoboticnessAfter  float64  `json:"roboticness_after"`
	AppliedRules      []string `json:"applied_rules,omitempty"`

	StageLatencyMs map[string]int64 `json:"stage_latency_ms"`
}

type feedbackEvent struct {
	responseID string
	rating     int
}

// Engine wires the full pipeline: classify and retrieve in parallel, select
// a template, complete, humanize, log. Feedback is queued and processed
// asynchronously so callers never wait on learning updates.
type Engine struct {
	cfg        *config.EngineConfig
	classifier *classification.Classifier
	retriever  *retrieval.Retriever
	selector   *selection.Selector
	completion CompletionService
	humanizer  *humanizer.Humanizer
	pipeline   *learning.Pipeline
	store      store.Store
	tracer     trace.Tracer

	feedbackCh chan feedbackEvent
	done       chan struct{}
	wg         sync.WaitGroup
}

// Dependencies carries the constructed pipeline stages into NewEngine.
type Dependencies struct {
	Classifier *classification.Classifier
	Retriever  *retrieval.Retriever
	Selector   *selection.Selector
	Completion CompletionService
	Humanizer  *humanizer.Humanizer
	Pipeline   *learning.Pipeline
	Store      store.Store
}

func NewEngine(cfg *config.EngineConfig, deps Dependencies) *Engine {
	e := &Engine{
		cfg:        cfg,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		selector:   deps.Selector,
		completion: deps.Completion,
		humanizer:  deps.Humanizer,
		pipeline:   deps.Pipeline,
		store:      deps.Store,
		tracer:     otel.Tracer("migadigital/engine"),
		feedbackCh: make(chan feedbackEvent, cfg.Learning.FeedbackQueueSize),
		done:       make(chan struct{}),
	}
	e.wg.Add(1)
	go e.feedbackWorker()
	return e
}

// GenerateResponse runs the full pipeline for one message. Upstream failures
// degrade stage by stage; the only error returned is an empty message.
func (e *Engine) GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", store.ErrInvalidInput)
	}

	latency := make(map[string]int64)

	var cls *classification.Result
	var retrieved *retrieval.ResultSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cls = e.timedClassify(gctx, req.Message, latency)
		return nil
	})
	g.Go(func() error {
		retrieved = e.timedRetrieve(gctx, req.Message, latency)
		return nil
	})
	// Both stages degrade internally and never fail.
	_ = g.Wait()

	sel := e.timedSelect(ctx, cls, req.UserID, latency)
	raw := e.timedComplete(ctx, sel.Prompt, req, retrieved.Context, cls, latency)
	before := humanizer.DetectRoboticness(raw)
	hum := e.timedHumanize(ctx, raw, cls, sel, latency)
	after := humanizer.DetectRoboticness(hum.Text)

	res := &Response{
		ID:                uuid.New().String(),
		Reply:             hum.Text,
		Emotion:           string(cls.Emotion),
		Intensity:         cls.Intensity,
		Urgency:           string(cls.Urgency),
		Confidence:        cls.Confidence,
		Crisis:            cls.Crisis,
		SelectionMethod:   string(sel.Method),
		ExperimentID:      sel.ExperimentID,
		Variant:           sel.Variant,
		KnowledgeUsed:     len(retrieved.Matches) > 0,
		RoboticnessBefore: before,
		RoboticnessAfter:  after,
		AppliedRules:      hum.AppliedRules,
		StageLatencyMs:    latency,
	}
	if sel.Template != nil {
		res.TemplateID = sel.Template.ID
	}

	e.writeLog(ctx, req, res, cls, sel, retrieved, raw)
	return res, nil
}

func (e *Engine) timedClassify(ctx context.Context, message string, latency map[string]int64) *classification.Result {
	ctx, span := e.tracer.Start(ctx, "classify")
	defer span.End()
	start := time.Now()
	cls := e.classifier.Classify(ctx, message)
	latency["classify"] = time.Since(start).Milliseconds()
	metrics.RecordStageLatency("classify", time.Since(start).Seconds())
	return cls
}

func (e *Engine) timedRetrieve(ctx context.Context, message string, latency map[string]int64) *retrieval.ResultSet {
	ctx, span := e.tracer.Start(ctx, "retrieve")
	defer span.End()
	start := time.Now()
	rs := e.retriever.Retrieve(ctx, message, retrieval.Options{})
	latency["retrieve"] = time.Since(start).Milliseconds()
	metrics.RecordStageLatency("retrieve", time.Since(start).Seconds())
	return rs
}

func (e *Engine) timedSelect(ctx context.Context, cls *classification.Result, userID string, latency map[string]int64) *selection.Selection {
	ctx, span := e.tracer.Start(ctx, "select")
	defer span.End()
	start := time.Now()
	sel, err := e.selector.Select(ctx, cls.Emotion, cls.Urgency, userID)
	latency["select"] = time.Since(start).Milliseconds()
	metrics.RecordStageLatency("select", time.Since(start).Seconds())
	if err != nil {
		// Select already falls back internally; this is belt and braces.
		logging.Warnf("[Engine] selection failed, using default prompt: %v", err)
		sel = &selection.Selection{
			Prompt: selection.DefaultPrompt(cls.Emotion, cls.Urgency),
			Method: selection.MethodDefault,
		}
	}
	return sel
}

func (e *Engine) timedComplete(ctx context.Context, prompt string, req Request, knowledge string, cls *classification.Result, latency map[string]int64) string {
	ctx, span := e.tracer.Start(ctx, "complete")
	defer span.End()
	start := time.Now()
	defer func() {
		latency["complete"] = time.Since(start).Milliseconds()
		metrics.RecordStageLatency("complete", time.Since(start).Seconds())
	}()

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Completion.Timeout())
	defer cancel()
	raw, err := e.completion.Complete(cctx, prompt, req.History, req.Message, knowledge)
	if err != nil {
		logging.Warnf("[Engine] completion failed, using canned reply: %v", err)
		metrics.RecordComponentError("completion", "request")
		return cannedReply(cls)
	}
	return raw
}

func (e *Engine) timedHumanize(ctx context.Context, raw string, cls *classification.Result, sel *selection.Selection, latency map[string]int64) humanizer.Result {
	ctx, span := e.tracer.Start(ctx, "humanize")
	defer span.End()
	start := time.Now()
	tone := ""
	if sel.Template != nil {
		tone = sel.Template.Tone
	}
	hum := e.humanizer.Humanize(ctx, raw, cls.Emotion, cls.Intensity, tone)
	latency["humanize"] = time.Since(start).Milliseconds()
	metrics.RecordStageLatency("humanize", time.Since(start).Seconds())
	return hum
}

// writeLog persists the response log. A persistence failure is logged and
// swallowed; the reply already exists and must still reach the user.
func (e *Engine) writeLog(ctx context.Context, req Request, res *Response, cls *classification.Result, sel *selection.Selection, retrieved *retrieval.ResultSet, raw string) {
	chunks := make([]store.ChunkRef, 0, len(retrieved.Matches))
	for _, m := range retrieved.Matches {
		chunks = append(chunks, store.ChunkRef{ChunkID: m.ChunkID, Similarity: m.Similarity})
	}
	log := &store.ResponseLog{
		ID:                res.ID,
		CreatedAt:         time.Now().UTC(),
		Input:             req.Message,
		Emotion:           res.Emotion,
		Intensity:         res.Intensity,
		Urgency:           res.Urgency,
		Confidence:        res.Confidence,
		Keywords:          cls.Keywords,
		ModelUsed:         cls.ModelUsed,
		TemplateID:        res.TemplateID,
		ExperimentID:      res.ExperimentID,
		Variant:           res.Variant,
		RetrievedChunks:   chunks,
		RawReply:          raw,
		HumanizedReply:    res.Reply,
		RoboticnessBefore: res.RoboticnessBefore,
		RoboticnessAfter:  res.RoboticnessAfter,
		AppliedRules:      res.AppliedRules,
		StageLatencyMs:    res.StageLatencyMs,
		CrisisFlag:        res.Crisis,
	}
	if err := e.store.CreateResponseLog(ctx, log); err != nil {
		logging.Errorf("[Engine] response log write failed for %s: %v", res.ID, err)
		metrics.RecordComponentError("store", "response_log")
	}
}

// SubmitFeedback validates and enqueues one rating. Malformed input is
// rejected here; everything past the queue is fire-and-forget.
func (e *Engine) SubmitFeedback(ctx context.Context, responseID string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", store.ErrInvalidInput)
	}
	if _, err := e.store.GetResponseLog(ctx, responseID); err != nil {
		return fmt.Errorf("response %s: %w", responseID, err)
	}
	if err := e.store.SetResponseFeedback(ctx, responseID, rating); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}

	select {
	case e.feedbackCh <- feedbackEvent{responseID: responseID, rating: rating}:
	default:
		logging.Warnf("[Engine] feedback queue full, dropping learning event for %s", responseID)
		metrics.FeedbackCount.WithLabelValues("dropped").Inc()
	}
	return nil
}

// GetDailyMetrics returns the stored aggregate row for a date (YYYY-MM-DD).
func (e *Engine) GetDailyMetrics(ctx context.Context, date string) (*store.DailyMetrics, error) {
	return e.store.GetDailyMetrics(ctx, date)
}

func (e *Engine) feedbackWorker() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.feedbackCh:
			ctx, cancel := context.WithTimeout(context.Background(),
				time.Duration(e.cfg.Learning.ProcessTimeoutSeconds)*time.Second)
			e.pipeline.OnFeedback(ctx, ev.responseID, ev.rating)
			cancel()
		case <-e.done:
			return
		}
	}
}

// Close stops the feedback worker and releases classifier resources.
func (e *Engine) Close() error {
	close(e.done)
	e.wg.Wait()
	return e.classifier.Close()
}

// NewRand returns the shared randomness source for engine components. The
// seed is fixed when configured, time-based otherwise.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
