package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

func newLedger(t *testing.T, n int) (*models.Cache, *models.Ledger) {
	t.Helper()
	cache := models.NewCache(sampleRows(n))
	return cache, models.NewLedger(cache, config.DefaultFieldPolicies())
}

func TestLedgerCapturesOriginalOnce(t *testing.T) {
	cache, ledger := newLedger(t, 2)

	if err := ledger.RecordEdit(0, "memo", "first draft"); err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	if err := ledger.RecordEdit(0, "memo", "second draft"); err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}

	row, _ := cache.Row(0)
	if row.Memo != "second draft" {
		t.Fatalf("cache memo = %q, want write-through of latest edit", row.Memo)
	}

	changes, err := ledger.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("drained %d changes, want 1 (edits to one cell collapse)", len(changes))
	}
	if changes[0].Original != "" || changes[0].Current != "second draft" {
		t.Fatalf("change original/current = %v/%v", changes[0].Original, changes[0].Current)
	}
}

func TestLedgerRejectsWhileFrozen(t *testing.T) {
	_, ledger := newLedger(t, 2)

	if err := ledger.RecordEdit(0, "jib", 1); err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	if _, err := ledger.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if err := ledger.RecordEdit(1, "jib", 1); !errors.Is(err, utils.ErrorSaveInFlight) {
		t.Fatalf("edit during drain error = %v, want ErrorSaveInFlight", err)
	}
	if _, err := ledger.Drain(); !errors.Is(err, utils.ErrorSaveInFlight) {
		t.Fatalf("double drain error = %v, want ErrorSaveInFlight", err)
	}

	ledger.Unfreeze()
	if err := ledger.RecordEdit(1, "jib", 1); err != nil {
		t.Fatalf("edit after unfreeze: %v", err)
	}
}

func TestLedgerPendingCountIsDistinctRows(t *testing.T) {
	_, ledger := newLedger(t, 3)

	for _, edit := range []struct {
		row   int
		field string
		value any
	}{
		{0, "jib", 1},
		{0, "memo", "a"},
		{0, "memo", "b"},
		{2, "rev", 1},
	} {
		if err := ledger.RecordEdit(edit.row, edit.field, edit.value); err != nil {
			t.Fatalf("RecordEdit(%d, %s): %v", edit.row, edit.field, err)
		}
	}
	if got := ledger.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
}

func TestLedgerRequeuePreservesOlderOriginal(t *testing.T) {
	_, ledger := newLedger(t, 1)

	if err := ledger.RecordEdit(0, "memo", "v1"); err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	changes, err := ledger.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	ledger.Unfreeze()

	// A new edit lands between drain and requeue.
	if err := ledger.RecordEdit(0, "memo", "v2"); err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	ledger.Requeue(changes)

	drained, err := ledger.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 1 {
		t.Fatalf("drained %d changes, want 1", len(drained))
	}
	if drained[0].Original != "" {
		t.Fatalf("requeue lost the session original: %v", drained[0].Original)
	}
	if drained[0].Current != "v2" {
		t.Fatalf("requeue clobbered the newer edit: %v", drained[0].Current)
	}
}

func TestLedgerRejectsReadOnlyField(t *testing.T) {
	_, ledger := newLedger(t, 1)
	if err := ledger.RecordEdit(0, "ssn_match", 50); !errors.Is(err, utils.ErrorInvalidField) {
		t.Fatalf("score edit error = %v, want ErrorInvalidField", err)
	}
	if err := ledger.RecordEdit(5, "memo", "x"); !errors.Is(err, utils.ErrorInvalidRowId) {
		t.Fatalf("bad row error = %v, want ErrorInvalidRowId", err)
	}
}
