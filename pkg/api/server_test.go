package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/api"
	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/engine"
	"github.com/Russete77/migadigital/pkg/humanizer"
	"github.com/Russete77/migadigital/pkg/learning"
	"github.com/Russete77/migadigital/pkg/retrieval"
	"github.com/Russete77/migadigital/pkg/selection"
	"github.com/Russete77/migadigital/pkg/store"
)

type fixedCompletion struct{}

func (fixedCompletion) Complete(_ context.Context, _ string, _ []engine.ChatTurn, _, _ string) (string, error) {
	return "Estou aqui com você, me conta mais.", nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	for _, rule := range humanizer.DefaultRules() {
		require.NoError(t, st.CreateHumanizerRule(context.Background(), rule))
	}

	cfg := config.Default()
	memo, err := classification.NewMemoCache(cfg.Classifier)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(21))
	selector := selection.NewSelector(cfg.Selection, st, rng)
	eng := engine.NewEngine(cfg, engine.Dependencies{
		Classifier: classification.NewClassifier(cfg.Classifier, memo),
		Retriever:  retrieval.NewRetriever(cfg.Retrieval, nil, retrieval.NewMemoryBackend(st), st),
		Selector:   selector,
		Completion: fixedCompletion{},
		Humanizer:  humanizer.NewHumanizer(st, humanizer.WithRand(rng)),
		Pipeline:   learning.NewPipeline(st, cfg.Learning, learning.LogAlerter{}, selector),
		Store:      st,
	})
	t.Cleanup(func() { eng.Close() })

	srv := httptest.NewServer(api.NewServer(eng, 0).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return res
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestResponsesEndpointRoundTrip(t *testing.T) {
	srv, st := newTestServer(t)

	res := postJSON(t, srv.URL+"/api/v1/responses", engine.Request{
		Message: "tô muito ansiosa com a entrevista de amanhã",
		UserID:  "user-1",
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out engine.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.NotEmpty(t, out.ID)
	assert.NotEmpty(t, out.Reply)
	assert.Equal(t, "anxious", out.Emotion)

	_, err := st.GetResponseLog(context.Background(), out.ID)
	assert.NoError(t, err, "a response log must exist for the returned id")
}

func TestResponsesEndpointRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	res := postJSON(t, srv.URL+"/api/v1/responses", engine.Request{Message: ""})
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	gen := postJSON(t, srv.URL+"/api/v1/responses", engine.Request{Message: "tô triste hoje"})
	defer gen.Body.Close()
	require.Equal(t, http.StatusOK, gen.StatusCode)
	var out engine.Response
	require.NoError(t, json.NewDecoder(gen.Body).Decode(&out))

	ok := postJSON(t, srv.URL+"/api/v1/feedback", api.FeedbackRequest{ResponseID: out.ID, Rating: 5})
	defer ok.Body.Close()
	assert.Equal(t, http.StatusAccepted, ok.StatusCode)

	bad := postJSON(t, srv.URL+"/api/v1/feedback", api.FeedbackRequest{ResponseID: out.ID, Rating: 9})
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	missing := postJSON(t, srv.URL+"/api/v1/feedback", api.FeedbackRequest{ResponseID: "nope", Rating: 3})
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestDailyMetricsEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	require.NoError(t, st.UpsertDailyMetrics(context.Background(), &store.DailyMetrics{
		Date: "2026-08-29", TotalResponses: 3,
	}))

	res, err := http.Get(srv.URL + "/api/v1/metrics/daily?date=2026-08-29")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var dm store.DailyMetrics
	require.NoError(t, json.NewDecoder(res.Body).Decode(&dm))
	assert.Equal(t, int64(3), dm.TotalResponses)

	missing, err := http.Get(srv.URL + "/api/v1/metrics/daily?date=1999-01-01")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	invalid, err := http.Get(srv.URL + "/api/v1/metrics/daily?date=not-a-date")
	require.NoError(t, err)
	defer invalid.Body.Close()
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}
