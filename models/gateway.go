package models

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// SaveResult aggregates one save cycle. FailedRowIDs stay pending in the
// ledger; a retry is simply "save again".
type SaveResult struct {
	Saved        int      `json:"saved_count"`
	Pending      int      `json:"pending_count"`
	FailedRowIDs []int    `json:"failed_row_ids,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// Gateway batches ledger contents into backend writes plus audit inserts.
// Save cycles are serialized: the ledger freezes for the duration of a
// drain, so two cycles can never read the same pending set.
type Gateway struct {
	dataset Dataset
	audit   AuditStore
	logger  *logrus.Logger
}

func NewGateway(dataset Dataset, audit AuditStore, logger *logrus.Logger) *Gateway {
	return &Gateway{dataset: dataset, audit: audit, logger: logger}
}

func (g *Gateway) SetDataset(dataset Dataset) {
	g.dataset = dataset
}

// Save drains the ledger, issues per-field batched merges keyed by
// (canvas_id, canvas_ssn), re-queues anything that failed and appends audit
// entries for what committed. An empty ledger returns immediately with no
// backend call.
func (g *Gateway) Save(ctx context.Context, cache *Cache, ledger *Ledger) SaveResult {
	if !ledger.IsDirty() {
		return SaveResult{}
	}

	changes, err := ledger.Drain()
	if err != nil {
		return SaveResult{
			Pending: ledger.PendingCount(),
			Errors:  []string{err.Error()},
		}
	}
	defer ledger.Unfreeze()

	// Group by field so each field becomes one batched merge call.
	byField := map[string][]PendingChange{}
	for _, change := range changes {
		byField[change.Field] = append(byField[change.Field], change)
	}

	var (
		committed []PendingChange
		failed    []PendingChange
		errs      []string
	)
	for field, fieldChanges := range byField {
		updates := make([]FieldUpdate, 0, len(fieldChanges))
		for _, change := range fieldChanges {
			row, rowErr := cache.Row(change.RowID)
			if rowErr != nil {
				errs = append(errs, fmt.Sprintf("row %d: %v", change.RowID, rowErr))
				continue
			}
			updates = append(updates, FieldUpdate{
				CanvasID:  row.CanvasID,
				CanvasSSN: row.CanvasSSN,
				Field:     field,
				Value:     change.Current,
			})
		}
		if len(updates) == 0 {
			continue
		}
		if _, mergeErr := g.dataset.MergeFields(ctx, updates); mergeErr != nil {
			failed = append(failed, fieldChanges...)
			errs = append(errs, fmt.Sprintf("field %q: %v", field, mergeErr))
			continue
		}
		committed = append(committed, fieldChanges...)
	}

	if len(failed) > 0 {
		ledger.Requeue(failed)
	}

	g.appendAudit(ctx, cache, committed)

	savedRows := map[int]struct{}{}
	for _, change := range committed {
		savedRows[change.RowID] = struct{}{}
	}
	failedRows := map[int]struct{}{}
	for _, change := range failed {
		failedRows[change.RowID] = struct{}{}
		// A row is only counted saved when every one of its changes went
		// through.
		delete(savedRows, change.RowID)
	}

	result := SaveResult{
		Saved:   len(savedRows),
		Pending: len(failedRows),
		Errors:  errs,
	}
	for rowID := range failedRows {
		result.FailedRowIDs = append(result.FailedRowIDs, rowID)
	}
	return result
}

// WriteImmediate persists a single edit synchronously (immediate-policy
// fields) and logs it to the audit trail.
func (g *Gateway) WriteImmediate(ctx context.Context, row *Row, field string, original, current any) error {
	_, err := g.dataset.MergeFields(ctx, []FieldUpdate{{
		CanvasID:  row.CanvasID,
		CanvasSSN: row.CanvasSSN,
		Field:     field,
		Value:     current,
	}})
	if err != nil {
		return err
	}
	g.appendEntries(ctx, []UpdateLog{auditEntry(row, field, original, current)})
	return nil
}

// WriteImmediateBatch persists one field across many rows as a single merge
// call, the bulk-approve path.
func (g *Gateway) WriteImmediateBatch(ctx context.Context, rows []*Row, field string, originals []any, current any) error {
	updates := make([]FieldUpdate, 0, len(rows))
	for _, row := range rows {
		updates = append(updates, FieldUpdate{
			CanvasID:  row.CanvasID,
			CanvasSSN: row.CanvasSSN,
			Field:     field,
			Value:     current,
		})
	}
	if _, err := g.dataset.MergeFields(ctx, updates); err != nil {
		return err
	}
	entries := make([]UpdateLog, 0, len(rows))
	for i, row := range rows {
		var original any
		if i < len(originals) {
			original = originals[i]
		}
		entries = append(entries, auditEntry(row, field, original, current))
	}
	g.appendEntries(ctx, entries)
	return nil
}

func (g *Gateway) appendAudit(ctx context.Context, cache *Cache, committed []PendingChange) {
	if len(committed) == 0 {
		return
	}
	entries := make([]UpdateLog, 0, len(committed))
	for _, change := range committed {
		row, err := cache.Row(change.RowID)
		if err != nil {
			continue
		}
		entries = append(entries, auditEntry(row, change.Field, change.Original, change.Current))
	}
	g.appendEntries(ctx, entries)
}

func (g *Gateway) appendEntries(ctx context.Context, entries []UpdateLog) {
	if g.audit == nil || len(entries) == 0 {
		return
	}
	if err := g.audit.Append(ctx, entries); err != nil && g.logger != nil {
		// Audit is diagnostic; a failed append never rolls back the data
		// write or keeps rows pending.
		g.logger.WithField("entries", len(entries)).Warn("audit append failed: " + err.Error())
	}
}

func auditEntry(row *Row, field string, original, current any) UpdateLog {
	return UpdateLog{
		CanvasID:  row.CanvasID,
		CanvasSSN: row.CanvasSSN,
		FieldName: field,
		OldValue:  utils.Stringify(original),
		NewValue:  utils.Stringify(current),
		UpdatedAt: time.Now(),
	}
}
