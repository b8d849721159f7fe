package datasource

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// SpreadsheetDataset reads and writes an .xlsx or .csv file. The first row
// is the header; all cells are read as strings and coerced during
// normalization.
type SpreadsheetDataset struct {
	Path string
}

func (d *SpreadsheetDataset) Kind() string {
	if d.isCSV() {
		return "csv"
	}
	return "excel"
}

func (d *SpreadsheetDataset) isCSV() bool {
	return strings.EqualFold(filepath.Ext(d.Path), ".csv")
}

func (d *SpreadsheetDataset) Load(ctx context.Context) ([]*models.Row, error) {
	records, err := d.readRecords()
	if err != nil {
		return nil, err
	}
	return models.NormalizeRecords(records), nil
}

func (d *SpreadsheetDataset) readRecords() ([]models.RawRecord, error) {
	if d.isCSV() {
		return d.readCSV()
	}
	f, err := excelize.OpenFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetList()[0]
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return tableToRecords(rows), nil
}

func (d *SpreadsheetDataset) readCSV() ([]models.RawRecord, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return tableToRecords(rows), nil
}

func tableToRecords(rows [][]string) []models.RawRecord {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	records := make([]models.RawRecord, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		rec := make(models.RawRecord, len(header))
		for i, name := range header {
			if i < len(cells) {
				rec[name] = cells[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

// Save rewrites the whole file from the row set.
func (d *SpreadsheetDataset) Save(ctx context.Context, rows []*models.Row) error {
	if d.isCSV() {
		return d.saveCSV(rows)
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetList()[0]

	for col, name := range models.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for col, name := range models.Columns {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, row.Get(name)); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(d.Path)
}

func (d *SpreadsheetDataset) saveCSV(rows []*models.Row) error {
	f, err := os.Create(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.Columns); err != nil {
		return err
	}
	record := make([]string, len(models.Columns))
	for _, row := range rows {
		for i, name := range models.Columns {
			record[i] = utils.Stringify(row.Get(name))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// MergeFields applies targeted cell updates to the workbook in place,
// addressing rows by the canvas_id + canvas_ssn columns.
func (d *SpreadsheetDataset) MergeFields(ctx context.Context, updates []models.FieldUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	if d.isCSV() {
		return d.mergeCSV(ctx, updates)
	}

	f, err := excelize.OpenFile(d.Path)
	if err != nil {
		return 0, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetList()[0]
	rows, err := f.GetRows(sheet)
	if err != nil || len(rows) == 0 {
		return 0, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	colIndex := map[string]int{}
	for i, name := range rows[0] {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, idOK := colIndex["canvas_id"]
	ssnCol, ssnOK := colIndex["canvas_ssn"]
	if !idOK || !ssnOK {
		return 0, fmt.Errorf("workbook lacks canvas_id/canvas_ssn columns")
	}

	affected := 0
	for _, update := range updates {
		fieldCol, ok := colIndex[update.Field]
		if !ok {
			continue
		}
		for rowIdx, cells := range rows[1:] {
			if cellAt(cells, idCol) != update.CanvasID || cellAt(cells, ssnCol) != update.CanvasSSN {
				continue
			}
			cell, cellErr := excelize.CoordinatesToCellName(fieldCol+1, rowIdx+2)
			if cellErr != nil {
				return affected, cellErr
			}
			if setErr := f.SetCellValue(sheet, cell, update.Value); setErr != nil {
				return affected, setErr
			}
			affected++
		}
	}
	if affected > 0 {
		if err := f.Save(); err != nil {
			return 0, err
		}
	}
	return affected, nil
}

func (d *SpreadsheetDataset) mergeCSV(ctx context.Context, updates []models.FieldUpdate) (int, error) {
	records, err := d.readCSV()
	if err != nil {
		return 0, err
	}
	affected := 0
	for _, update := range updates {
		for _, rec := range records {
			if utils.Stringify(rec["canvas_id"]) != update.CanvasID ||
				utils.Stringify(rec["canvas_ssn"]) != update.CanvasSSN {
				continue
			}
			rec[update.Field] = utils.Stringify(update.Value)
			affected++
		}
	}
	if affected == 0 {
		return 0, nil
	}
	return affected, d.Save(ctx, models.NormalizeRecords(records))
}

func cellAt(cells []string, idx int) string {
	if idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}
