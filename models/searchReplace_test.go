package models_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

func searchCache() *models.Cache {
	rows := []*models.Row{
		{CanvasName: "SMITH OIL", DecName: "Smith Oil Co", Memo: "smith called twice"},
		{CanvasName: "JONES GAS", DecName: "Jones Gas"},
		{CanvasName: "SMITHSON LLC", DecName: "Smithson"},
	}
	return models.NewCache(rows)
}

func TestFindMatchesCountsOccurrences(t *testing.T) {
	cache := searchCache()

	result, err := models.FindMatches(cache, "smith", nil, false, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	// Row 0: canvas_name, dec_name, memo. Row 2: canvas_name, dec_name.
	if result.MatchCount != 5 {
		t.Fatalf("match_count = %d, want 5", result.MatchCount)
	}
	if len(result.RowIDs) != 2 || result.RowIDs[0] != 0 || result.RowIDs[1] != 2 {
		t.Fatalf("matching rows = %v, want [0 2]", result.RowIDs)
	}
}

func TestFindMatchesCaseSensitive(t *testing.T) {
	cache := searchCache()

	result, err := models.FindMatches(cache, "Smith", []string{"dec_name"}, true, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if result.MatchCount != 2 {
		t.Fatalf("match_count = %d, want 2 (Smith Oil Co, Smithson)", result.MatchCount)
	}

	none, err := models.FindMatches(cache, "SMITH", []string{"memo"}, true, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if none.MatchCount != 0 {
		t.Fatalf("case-sensitive memo search matched %d", none.MatchCount)
	}
}

func TestFindMatchesScopeLimitsRows(t *testing.T) {
	cache := searchCache()

	result, err := models.FindMatches(cache, "smith", nil, false, []int{1, 2})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(result.RowIDs) != 1 || result.RowIDs[0] != 2 {
		t.Fatalf("scoped rows = %v, want [2]", result.RowIDs)
	}
}

func TestReplaceAllPreservesMultiByteNeighbors(t *testing.T) {
	session, _, _ := newTestSession(t, 2)
	ctx := context.Background()

	// Lowercasing changes the byte length of these prefixes, so the matched
	// span must be located in the original string, not a folded copy.
	mustEdit(t, session, 0, "memo", "İİİ smith office")
	mustEdit(t, session, 1, "memo", "ȺȺȺȺȺȺ smith")

	result, err := session.ReplaceAll(ctx, "smith", "JONES", []string{"memo"}, false, nil)
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if result.Replaced != 2 || result.AffectedRows != 2 {
		t.Fatalf("replaced=%d affected=%d, want 2/2", result.Replaced, result.AffectedRows)
	}

	row0, _ := session.Record(0)
	if row0.Memo != "İİİ JONES office" {
		t.Fatalf("memo[0] = %q", row0.Memo)
	}
	row1, _ := session.Record(1)
	if row1.Memo != "ȺȺȺȺȺȺ JONES" {
		t.Fatalf("memo[1] = %q", row1.Memo)
	}
}

func TestReplaceOneSpansMultiByteMatch(t *testing.T) {
	session, _, _ := newTestSession(t, 1)
	ctx := context.Background()

	// The matched term itself is multi-byte and differently cased, so the
	// replaced span's end must come from the original text, not len(term).
	mustEdit(t, session, 0, "memo", "ål ÅLBORG depot")

	changed, err := session.ReplaceOne(ctx, "ålborg", "Århus", "memo", false, 0, nil)
	if err != nil || !changed {
		t.Fatalf("ReplaceOne: changed=%v err=%v", changed, err)
	}
	row, _ := session.Record(0)
	if row.Memo != "ål Århus depot" {
		t.Fatalf("memo = %q", row.Memo)
	}
}

func TestFindMatchesRejectsNonTextColumn(t *testing.T) {
	cache := searchCache()
	if _, err := models.FindMatches(cache, "90", []string{"name_score"}, false, nil); err == nil {
		t.Fatalf("expected error for numeric column")
	}
	if result, err := models.FindMatches(cache, "", nil, false, nil); err != nil || result.MatchCount != 0 {
		t.Fatalf("empty term should match nothing: %+v, %v", result, err)
	}
}
