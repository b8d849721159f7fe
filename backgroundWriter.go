package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

// BackgroundWriter performs full-dataset writebacks off the request path.
// It owns only the storage write: snapshots arrive by value and the live
// cache is never touched. A single goroutine drains a single-slot queue,
// so two rewrites are never in flight at once and a newer snapshot simply
// replaces a queued older one.
type BackgroundWriter struct {
	logger  *logrus.Logger
	dataset func() models.Dataset
	pending chan []*models.Row
}

func NewBackgroundWriter(dataset func() models.Dataset, logger *logrus.Logger) *BackgroundWriter {
	return &BackgroundWriter{
		logger:  logger,
		dataset: dataset,
		pending: make(chan []*models.Row, 1),
	}
}

// Submit queues a snapshot for writeback without blocking the caller.
func (w *BackgroundWriter) Submit(rows []*models.Row) {
	for {
		select {
		case w.pending <- rows:
			return
		default:
			// Drop the stale queued snapshot; the new one supersedes it.
			select {
			case <-w.pending:
			default:
			}
		}
	}
}

func (w *BackgroundWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rows := <-w.pending:
			start := time.Now()
			if err := w.dataset().Save(ctx, rows); err != nil {
				config.LogError(w.logger, "backgroundWriter.go", "Run", "dataset.Save", map[string]any{
					"rows": len(rows),
				}, err)
				continue
			}
			w.logger.WithFields(logrus.Fields{
				"rows":    len(rows),
				"elapsed": time.Since(start).String(),
			}).Info("dataset writeback complete")
		}
	}
}
