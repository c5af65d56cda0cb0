package server

import (
	"context"

	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// OpenIndex opens the full-text index at cfg.IndexPath and, when the index
// file did not exist yet, seeds it from the catalog. The caller owns the
// returned index and must close it on shutdown.
func OpenIndex(ctx context.Context, cfg *config.Config, db *bun.DB) (*search.Index, error) {
	index, created, err := search.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}

	if created {
		log := logger.FromContext(ctx)
		log.Info("bootstrapping search index", logger.Data{"path": cfg.IndexPath})
		if err := search.Bootstrap(ctx, db, index); err != nil {
			_ = index.Close()
			return nil, err
		}
	}

	return index, nil
}
