package datasource_test

import (
	"context"
	"path/filepath"
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/datasource"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

func spreadsheetRows() []*models.Row {
	return []*models.Row{
		{
			CanvasID: "CV0001", CanvasSSN: "123-45-6789", CanvasName: "SMITH OIL",
			DecName: "Smith Oil Co", SSNMatch: 100, NameScore: 92.5,
			Recommendation: "MATCH", Jib: 1, Memo: "checked",
		},
		{
			CanvasID: "CV0002", CanvasSSN: "987-65-4321", CanvasName: "JONES GAS",
			DecName: "Jones Gas", SSNMatch: 0, NameScore: 40,
			Recommendation: "NO MATCH",
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := &datasource.SpreadsheetDataset{Path: filepath.Join(t.TempDir(), "matches.csv")}
	if ds.Kind() != "csv" {
		t.Fatalf("kind = %q", ds.Kind())
	}

	if err := ds.Save(ctx, spreadsheetRows()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rows, err := ds.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("loaded %d rows", len(rows))
	}
	row := rows[0]
	if row.CanvasID != "CV0001" || row.DecName != "Smith Oil Co" {
		t.Fatalf("row 0 = %+v", row)
	}
	if row.SSNMatch != 100 || row.NameScore != 92.5 {
		t.Fatalf("scores survived as %v / %v", row.SSNMatch, row.NameScore)
	}
	if row.Jib != 1 || row.Memo != "checked" {
		t.Fatalf("flags/memo = %d / %q", row.Jib, row.Memo)
	}
}

func TestCSVMergeFields(t *testing.T) {
	ctx := context.Background()
	ds := &datasource.SpreadsheetDataset{Path: filepath.Join(t.TempDir(), "matches.csv")}
	if err := ds.Save(ctx, spreadsheetRows()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	affected, err := ds.MergeFields(ctx, []models.FieldUpdate{
		{CanvasID: "CV0002", CanvasSSN: "987-65-4321", Field: "recommendation", Value: "REVIEW"},
		{CanvasID: "CV9999", CanvasSSN: "000-00-0000", Field: "recommendation", Value: "X"},
	})
	if err != nil {
		t.Fatalf("MergeFields: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	rows, err := ds.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rows[1].Recommendation != "REVIEW" {
		t.Fatalf("merge not persisted: %q", rows[1].Recommendation)
	}
	if rows[0].Recommendation != "MATCH" {
		t.Fatalf("untargeted row changed: %q", rows[0].Recommendation)
	}
}

func TestExcelRoundTripAndMerge(t *testing.T) {
	ctx := context.Background()
	ds := &datasource.SpreadsheetDataset{Path: filepath.Join(t.TempDir(), "matches.xlsx")}
	if ds.Kind() != "excel" {
		t.Fatalf("kind = %q", ds.Kind())
	}

	if err := ds.Save(ctx, spreadsheetRows()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rows, err := ds.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 || rows[0].CanvasID != "CV0001" {
		t.Fatalf("loaded rows = %d", len(rows))
	}

	affected, err := ds.MergeFields(ctx, []models.FieldUpdate{
		{CanvasID: "CV0001", CanvasSSN: "123-45-6789", Field: "memo", Value: "verified by phone"},
	})
	if err != nil {
		t.Fatalf("MergeFields: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}
	rows, err = ds.Load(ctx)
	if err != nil {
		t.Fatalf("Load after merge: %v", err)
	}
	if rows[0].Memo != "verified by phone" {
		t.Fatalf("memo = %q", rows[0].Memo)
	}
}
