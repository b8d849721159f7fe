package models

import (
	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

type changeKey struct {
	RowID int
	Field string
}

// PendingChange is one unsaved field edit. Original is the cache value
// before the first edit of the session and is never overwritten; only
// Current advances on subsequent edits to the same cell.
type PendingChange struct {
	RowID    int
	Field    string
	Original any
	Current  any
}

// Ledger tracks unsaved deferred edits keyed by (row id, field). Edits
// write through to the cache immediately; nothing reaches the backing
// store until the persistence gateway drains the ledger.
type Ledger struct {
	cache    *Cache
	policies config.FieldPolicies
	entries  map[changeKey]*PendingChange

	// frozen while a drain is outstanding; new edits are refused rather
	// than risk losing one between snapshot and clear.
	frozen bool
}

func NewLedger(cache *Cache, policies config.FieldPolicies) *Ledger {
	return &Ledger{
		cache:    cache,
		policies: policies,
		entries:  map[changeKey]*PendingChange{},
	}
}

// RecordEdit validates the field, captures the pre-edit cache value as the
// original on the cell's first edit, advances the current value and writes
// it through to the cache.
func (l *Ledger) RecordEdit(rowID int, field string, value any) error {
	if !l.policies.Editable(field) {
		return utils.ErrorInvalidField
	}
	row, err := l.cache.Row(rowID)
	if err != nil {
		return err
	}
	if l.frozen {
		return utils.ErrorSaveInFlight
	}

	original := row.Get(field)
	if err := row.Set(field, value); err != nil {
		return err
	}

	key := changeKey{RowID: rowID, Field: field}
	if entry, ok := l.entries[key]; ok {
		entry.Current = row.Get(field)
		return nil
	}
	l.entries[key] = &PendingChange{
		RowID:    rowID,
		Field:    field,
		Original: original,
		Current:  row.Get(field),
	}
	return nil
}

// Record inserts a change whose original was captured by the caller. Used
// when an immediate write fails and the edit falls back to pending so the
// next save retries it.
func (l *Ledger) Record(rowID int, field string, original, current any) {
	key := changeKey{RowID: rowID, Field: field}
	if entry, ok := l.entries[key]; ok {
		entry.Current = current
		return
	}
	l.entries[key] = &PendingChange{
		RowID:    rowID,
		Field:    field,
		Original: original,
		Current:  current,
	}
}

func (l *Ledger) IsDirty() bool {
	return len(l.entries) > 0
}

// PendingCount is the number of distinct rows with at least one pending
// field, which is what the save-button badge shows.
func (l *Ledger) PendingCount() int {
	rows := map[int]struct{}{}
	for key := range l.entries {
		rows[key.RowID] = struct{}{}
	}
	return len(rows)
}

// Drain snapshots and clears the ledger, freezing it until Unfreeze so no
// edit can slip in while a save cycle is reading the snapshot.
func (l *Ledger) Drain() ([]PendingChange, error) {
	if l.frozen {
		return nil, utils.ErrorSaveInFlight
	}
	l.frozen = true
	out := make([]PendingChange, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, *entry)
	}
	l.entries = map[changeKey]*PendingChange{}
	return out, nil
}

// Requeue restores changes whose persistence failed. Originals are kept
// from the failed entries so a retried save logs the true session original.
func (l *Ledger) Requeue(changes []PendingChange) {
	for _, change := range changes {
		key := changeKey{RowID: change.RowID, Field: change.Field}
		if entry, ok := l.entries[key]; ok {
			// A newer edit landed after the drain; keep the older original.
			entry.Original = change.Original
			continue
		}
		c := change
		l.entries[key] = &c
	}
}

func (l *Ledger) Unfreeze() {
	l.frozen = false
}

func (l *Ledger) Frozen() bool {
	return l.frozen
}
