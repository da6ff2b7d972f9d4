package store

import (
	"fmt"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// NewStore creates a store backend based on the configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		logging.Infof("Creating in-memory store")
		return NewMemoryStore(), nil
	case "sqlite":
		logging.Infof("Creating sqlite store at %s", cfg.SQLitePath)
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend %q (valid: memory, sqlite)", cfg.Backend)
	}
}
