package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Russete77/migadigital/pkg/api"
	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/engine"
	"github.com/Russete77/migadigital/pkg/humanizer"
	"github.com/Russete77/migadigital/pkg/learning"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/retrieval"
	"github.com/Russete77/migadigital/pkg/selection"
	"github.com/Russete77/migadigital/pkg/store"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and metrics servers",
		Long:  `Load configuration, wire the response pipeline and serve until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := seedHumanizerRules(st); err != nil {
		return err
	}

	eng, err := buildEngine(cfg, st)
	if err != nil {
		return err
	}
	defer eng.Close()

	apiServer := api.NewServer(eng, cfg.Server.APIPort)
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logging.Infof("[Serve] metrics listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Infof("[Serve] received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logging.Warnf("[Serve] api shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logging.Warnf("[Serve] metrics shutdown: %v", err)
	}
	return nil
}

func loadConfig(path string) (*config.EngineConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Parse(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Warnf("[Serve] config %s not found, using defaults", path)
			return config.Default(), nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// seedHumanizerRules inserts the default rule rows when missing. Existing
// rows keep their learned state.
func seedHumanizerRules(st store.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, rule := range humanizer.DefaultRules() {
		err := st.CreateHumanizerRule(ctx, rule)
		if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("seed rule %s: %w", rule.Name, err)
		}
	}
	return nil
}

func buildEngine(cfg *config.EngineConfig, st store.Store) (*engine.Engine, error) {
	memo, err := classification.NewMemoCache(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("init memo cache: %w", err)
	}
	classifier := classification.NewClassifier(cfg.Classifier, memo)

	var embedder retrieval.EmbeddingService
	if cfg.Retrieval.EmbeddingURL != "" || cfg.Retrieval.EmbeddingAPIKey != "" {
		embedder = retrieval.NewOpenAIEmbeddingService(cfg.Retrieval)
	}
	backend, err := retrieval.NewVectorBackend(cfg.Retrieval, st)
	if err != nil {
		return nil, fmt.Errorf("init vector backend: %w", err)
	}
	retriever := retrieval.NewRetriever(cfg.Retrieval, embedder, backend, st)

	rng := engine.NewRand(cfg.Humanizer.Seed)
	selector := selection.NewSelector(cfg.Selection, st, rng)
	hum := humanizer.NewHumanizer(st,
		humanizer.WithRand(rng),
		humanizer.WithDisabled(cfg.Humanizer.Disabled))
	pipeline := learning.NewPipeline(st, cfg.Learning, learning.LogAlerter{}, selector)
	completion := engine.NewOpenAICompletionService(cfg.Completion)

	return engine.NewEngine(cfg, engine.Dependencies{
		Classifier: classifier,
		Retriever:  retriever,
		Selector:   selector,
		Completion: completion,
		Humanizer:  hum,
		Pipeline:   pipeline,
		Store:      st,
	}), nil
}
