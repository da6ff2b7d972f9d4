package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/config"
)

func TestDefaultsAreApplied(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 5*time.Second, cfg.Classifier.ClassifierTimeout())
	assert.Equal(t, 0.1, cfg.Selection.Epsilon)
	assert.Equal(t, 0.7, cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, 4, cfg.Retrieval.MaxResults)
	assert.Equal(t, 2000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, 0.1, cfg.Learning.LearningRate)
	assert.Equal(t, 10, cfg.Learning.DeactivateMinUses)
	assert.Equal(t, 0.3, cfg.Learning.DeactivateNegRatio)
	assert.Equal(t, 8080, cfg.Server.APIPort)
}

func TestParseOverridesAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classifier:
  primary:
    url: "http://localhost:9000"
    model: "sentiment-pt"
selection:
  epsilon: 0.2
store:
  backend: sqlite
  sqlite_path: /tmp/miga.db
`), 0o644))

	cfg, err := config.Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Classifier.Primary.URL)
	assert.Equal(t, 0.2, cfg.Selection.Epsilon)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.7, cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, 256, cfg.Learning.FeedbackQueueSize)
}

func TestParseRejectsMissingFile(t *testing.T) {
	_, err := config.Parse("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selection: [not a mapping"), 0o644))

	_, err := config.Parse(path)
	assert.Error(t, err)
}
