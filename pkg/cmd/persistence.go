package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/memory"
	"github.com/dukex/leadflow/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL. postgres:// and postgresql:// URLs
// use PostgreSQL; memory:// keeps everything in process.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, _, _ := strings.Cut(databaseURL, "://")

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger.With("module", "postgresql"), databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence, data is lost on exit")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL scheme %q", provider)
	}
}
