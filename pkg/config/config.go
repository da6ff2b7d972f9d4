// Package config loads and validates the engine configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the root configuration for the adaptive response engine.
type EngineConfig struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Selection  SelectionConfig  `yaml:"selection"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Humanizer  HumanizerConfig  `yaml:"humanizer"`
	Learning   LearningConfig   `yaml:"learning"`
	Store      StoreConfig      `yaml:"store"`
	Completion CompletionConfig `yaml:"completion"`
	Server     ServerConfig     `yaml:"server"`
}

// ClassifierEndpoint describes one external classification service tier.
type ClassifierEndpoint struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Disabled bool   `yaml:"disabled"`
}

// ClassifierConfig configures the tiered emotion/urgency classifier.
type ClassifierConfig struct {
	Primary   ClassifierEndpoint `yaml:"primary"`
	Secondary ClassifierEndpoint `yaml:"secondary"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Memoization cache for near-duplicate messages.
	MemoTTLSeconds int    `yaml:"memo_ttl_seconds"`
	MemoMaxEntries int    `yaml:"memo_max_entries"`
	MemoBackend    string `yaml:"memo_backend"` // "memory" (default) or "redis"
	RedisAddress   string `yaml:"redis_address"`
}

// SelectionConfig configures the bandit template selector.
type SelectionConfig struct {
	Epsilon         float64 `yaml:"epsilon"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// RetrievalConfig configures the knowledge retriever.
type RetrievalConfig struct {
	Backend             string  `yaml:"backend"` // "memory" or "milvus"
	MilvusAddress       string  `yaml:"milvus_address"`
	MilvusCollection    string  `yaml:"milvus_collection"`
	EmbeddingURL        string  `yaml:"embedding_url"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingAPIKey     string  `yaml:"embedding_api_key"`
	EmbeddingDimension  int     `yaml:"embedding_dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxResults          int     `yaml:"max_results"`
	MaxContextChars     int     `yaml:"max_context_chars"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
}

// HumanizerConfig configures the response humanizer.
type HumanizerConfig struct {
	Disabled bool  `yaml:"disabled"`
	Seed     int64 `yaml:"seed"` // 0 means time-seeded
}

// LearningConfig configures the feedback learning pipeline.
type LearningConfig struct {
	LearningRate          float64 `yaml:"learning_rate"`
	DeactivateMinUses     int     `yaml:"deactivate_min_uses"`
	DeactivateNegRatio    float64 `yaml:"deactivate_neg_ratio"`
	FeedbackQueueSize     int     `yaml:"feedback_queue_size"`
	ProcessTimeoutSeconds int     `yaml:"process_timeout_seconds"`
}

// StoreConfig configures the persistent store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "memory" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
}

// CompletionConfig configures the external text completion service.
type CompletionConfig struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ServerConfig configures the HTTP API and metrics listeners.
type ServerConfig struct {
	APIPort     int `yaml:"api_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// Parse reads and validates the YAML config at the given path.
func Parse(configPath string) (*EngineConfig, error) {
	// Resolve symlinks to handle mounted config files
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &EngineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := validateConfigStructure(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied and no external
// services configured. Useful for tests and for running fully degraded.
func Default() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *EngineConfig) applyDefaults() {
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = 5
	}
	if c.Classifier.MemoTTLSeconds <= 0 {
		c.Classifier.MemoTTLSeconds = 300
	}
	if c.Classifier.MemoMaxEntries <= 0 {
		c.Classifier.MemoMaxEntries = 1000
	}
	if c.Classifier.MemoBackend == "" {
		c.Classifier.MemoBackend = "memory"
	}
	if c.Selection.Epsilon <= 0 {
		c.Selection.Epsilon = 0.1
	}
	if c.Selection.CacheTTLSeconds <= 0 {
		c.Selection.CacheTTLSeconds = 600
	}
	if c.Retrieval.Backend == "" {
		c.Retrieval.Backend = "memory"
	}
	if c.Retrieval.SimilarityThreshold <= 0 {
		c.Retrieval.SimilarityThreshold = 0.7
	}
	if c.Retrieval.MaxResults <= 0 {
		c.Retrieval.MaxResults = 4
	}
	if c.Retrieval.MaxContextChars <= 0 {
		c.Retrieval.MaxContextChars = 2000
	}
	if c.Retrieval.TimeoutSeconds <= 0 {
		c.Retrieval.TimeoutSeconds = 5
	}
	if c.Retrieval.EmbeddingDimension <= 0 {
		c.Retrieval.EmbeddingDimension = 1536
	}
	if c.Learning.LearningRate <= 0 {
		c.Learning.LearningRate = 0.1
	}
	if c.Learning.DeactivateMinUses <= 0 {
		c.Learning.DeactivateMinUses = 10
	}
	if c.Learning.DeactivateNegRatio <= 0 {
		c.Learning.DeactivateNegRatio = 0.3
	}
	if c.Learning.FeedbackQueueSize <= 0 {
		c.Learning.FeedbackQueueSize = 256
	}
	if c.Learning.ProcessTimeoutSeconds <= 0 {
		c.Learning.ProcessTimeoutSeconds = 10
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Completion.TimeoutSeconds <= 0 {
		c.Completion.TimeoutSeconds = 30
	}
	if c.Server.APIPort <= 0 {
		c.Server.APIPort = 8080
	}
	if c.Server.MetricsPort <= 0 {
		c.Server.MetricsPort = 9190
	}
}

func validateConfigStructure(cfg *EngineConfig) error {
	if cfg.Selection.Epsilon < 0 || cfg.Selection.Epsilon > 1 {
		return fmt.Errorf("selection.epsilon must be in [0,1], got %v", cfg.Selection.Epsilon)
	}
	if cfg.Retrieval.SimilarityThreshold < 0 || cfg.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0,1], got %v", cfg.Retrieval.SimilarityThreshold)
	}
	switch cfg.Retrieval.Backend {
	case "memory":
	case "milvus":
		if cfg.Retrieval.MilvusAddress == "" {
			return fmt.Errorf("retrieval.milvus_address is required for the milvus backend")
		}
	default:
		return fmt.Errorf("unsupported retrieval backend %q (valid: memory, milvus)", cfg.Retrieval.Backend)
	}
	switch cfg.Store.Backend {
	case "memory":
	case "sqlite":
		if cfg.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported store backend %q (valid: memory, sqlite)", cfg.Store.Backend)
	}
	switch cfg.Classifier.MemoBackend {
	case "memory":
	case "redis":
		if cfg.Classifier.RedisAddress == "" {
			return fmt.Errorf("classifier.redis_address is required for the redis memo backend")
		}
	default:
		return fmt.Errorf("unsupported memo backend %q (valid: memory, redis)", cfg.Classifier.MemoBackend)
	}
	if cfg.Learning.DeactivateNegRatio <= 0 || cfg.Learning.DeactivateNegRatio >= 1 {
		return fmt.Errorf("learning.deactivate_neg_ratio must be in (0,1), got %v", cfg.Learning.DeactivateNegRatio)
	}
	return nil
}

// ClassifierTimeout returns the per-call deadline for classification services.
func (c *ClassifierConfig) ClassifierTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MemoTTL returns the classification memoization TTL.
func (c *ClassifierConfig) MemoTTL() time.Duration {
	return time.Duration(c.MemoTTLSeconds) * time.Second
}

// CacheTTL returns the template candidate cache TTL.
func (c *SelectionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the per-call deadline for retrieval services.
func (c *RetrievalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-call deadline for the completion service.
func (c *CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
