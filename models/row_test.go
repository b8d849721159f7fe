package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

func TestNormalizeRecordsRemapsLegacyColumns(t *testing.T) {
	rows := models.NormalizeRecords([]models.RawRecord{
		{
			"canvas_id":   "CV0001",
			"SSN":         "123-45-6789",
			"HDRCODE":     "H100",
			"hdrname":     "ACME HOLDINGS",
			"addrcontact": "J DOE",
			"addraddress": "1 MAIN ST",
			"addrcity":    "HOUSTON",
			"addrstate":   "TX",
			"addrzipcode": "77001",
			"name_score":  "87.5",
			"jib":         "1",
		},
	})
	if len(rows) != 1 {
		t.Fatalf("normalized %d rows", len(rows))
	}
	row := rows[0]
	if row.CanvasSSN != "123-45-6789" {
		t.Fatalf("ssn not remapped: %q", row.CanvasSSN)
	}
	if row.DecHdrcode != "H100" || row.DecName != "ACME HOLDINGS" || row.DecContact != "J DOE" {
		t.Fatalf("legacy dec columns: %q %q %q", row.DecHdrcode, row.DecName, row.DecContact)
	}
	if row.DecAddress != "1 MAIN ST" || row.DecCity != "HOUSTON" || row.DecState != "TX" || row.DecZip != "77001" {
		t.Fatalf("legacy address columns: %q %q %q %q", row.DecAddress, row.DecCity, row.DecState, row.DecZip)
	}
	if row.NameScore != 87.5 {
		t.Fatalf("string score not coerced: %v", row.NameScore)
	}
	if row.Jib != 1 {
		t.Fatalf("string flag not coerced: %v", row.Jib)
	}
}

func TestNormalizeRecordsCanonicalWinsOverLegacy(t *testing.T) {
	rows := models.NormalizeRecords([]models.RawRecord{
		{
			"dec_name": "CANONICAL",
			"hdrname":  "LEGACY",
		},
	})
	if rows[0].DecName != "CANONICAL" {
		t.Fatalf("dec_name = %q, legacy alias must not clobber canonical column", rows[0].DecName)
	}
}

func TestNormalizeRecordsDefaultsMissingColumns(t *testing.T) {
	rows := models.NormalizeRecords([]models.RawRecord{
		{"canvas_id": "CV0002"},
	})
	row := rows[0]
	if row.NameScore != 0 || row.SSNMatch != 0 || row.Jib != 0 {
		t.Fatalf("numeric defaults: %v %v %v", row.NameScore, row.SSNMatch, row.Jib)
	}
	if row.Memo != "" || row.Recommendation != "" {
		t.Fatalf("text defaults: %q %q", row.Memo, row.Recommendation)
	}
	if row.RowID != 0 {
		t.Fatalf("row id = %d", row.RowID)
	}
}

func TestRowSetCoercesJSONValues(t *testing.T) {
	row := &models.Row{}

	// JSON numbers arrive as float64.
	if err := row.Set("jib", float64(1)); err != nil {
		t.Fatalf("Set jib: %v", err)
	}
	if row.Jib != 1 {
		t.Fatalf("jib = %d", row.Jib)
	}
	if err := row.Set("vendor", true); err != nil {
		t.Fatalf("Set vendor: %v", err)
	}
	if row.Vendor != 1 {
		t.Fatalf("vendor = %d", row.Vendor)
	}
	if err := row.Set("memo", 42.0); err != nil {
		t.Fatalf("Set memo: %v", err)
	}
	if row.Memo != "42" {
		t.Fatalf("memo = %q, integral float should not keep a decimal point", row.Memo)
	}
	if err := row.Set("bogus", "x"); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}

func TestCacheRenumbersAndSnapshotsIndependently(t *testing.T) {
	rows := sampleRows(3)
	rows[0].RowID = 99
	cache := models.NewCache(rows)

	for i := 0; i < 3; i++ {
		row, err := cache.Row(i)
		if err != nil {
			t.Fatalf("Row(%d): %v", i, err)
		}
		if row.RowID != i {
			t.Fatalf("row id = %d, want %d", row.RowID, i)
		}
	}
	if _, err := cache.Row(3); err == nil {
		t.Fatalf("expected error past end")
	}
	if _, err := cache.Row(-1); err == nil {
		t.Fatalf("expected error for negative id")
	}

	snapshot := cache.Snapshot()
	snapshot[0].Memo = "mutated"
	live, _ := cache.Row(0)
	if live.Memo == "mutated" {
		t.Fatalf("snapshot shares row structs with the live cache")
	}
}
