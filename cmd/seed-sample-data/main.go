// seed-sample-data writes a sample match workbook plus a datasources.json
// pointing at it, so the review server starts with data out of the box.
//
// Usage (from backend directory):
//   go run ./cmd/seed-sample-data [-out data] [-rows 200] [-sqlite]
//
// With -sqlite the same rows are also loaded into a review_data.db table
// and registered as a second datasource.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/datasource"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

var firstNames = []string{"JAMES", "MARY", "ROBERT", "PATRICIA", "JOHN", "JENNIFER", "MICHAEL", "LINDA", "DAVID", "ELIZABETH"}
var lastNames = []string{"SMITH", "JOHNSON", "WILLIAMS", "BROWN", "JONES", "GARCIA", "MILLER", "DAVIS", "RODRIGUEZ", "MARTINEZ"}
var cities = []string{"HOUSTON", "DALLAS", "AUSTIN", "MIDLAND", "ODESSA", "LUBBOCK", "TULSA", "DENVER"}
var states = []string{"TX", "TX", "TX", "OK", "CO", "NM"}
var recommendations = []string{"MATCH", "NO MATCH", "REVIEW", "PARTIAL MATCH"}

func sampleRows(n int, rng *rand.Rand) []*models.Row {
	rows := make([]*models.Row, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s %s", firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))])
		city := cities[rng.Intn(len(cities))]
		state := states[rng.Intn(len(states))]
		ssnScore := []float64{0, 50, 100}[rng.Intn(3)]
		row := &models.Row{
			RowID:          i,
			CanvasID:       fmt.Sprintf("CV%06d", 100000+i),
			CanvasSSN:      fmt.Sprintf("%03d-%02d-%04d", rng.Intn(900)+100, rng.Intn(90)+10, rng.Intn(9000)+1000),
			CanvasName:     name,
			CanvasAddress:  fmt.Sprintf("%d MAIN ST", rng.Intn(9000)+100),
			CanvasCity:     city,
			CanvasState:    state,
			CanvasZip:      fmt.Sprintf("%05d", rng.Intn(90000)+10000),
			DecHdrcode:     fmt.Sprintf("HDR%04d", rng.Intn(10000)),
			DecName:        name,
			DecAddress:     fmt.Sprintf("%d MAIN STREET", rng.Intn(9000)+100),
			DecCity:        city,
			DecState:       state,
			DecZip:         fmt.Sprintf("%05d", rng.Intn(90000)+10000),
			SSNMatch:       ssnScore,
			NameScore:      float64(rng.Intn(41) + 60),
			AddressScore:   float64(rng.Intn(61) + 40),
			Recommendation: recommendations[rng.Intn(len(recommendations))],
		}
		rows = append(rows, row)
	}
	return rows
}

func createMatchTable(ds *datasource.RelationalDataset) error {
	columns := ""
	for i, col := range models.Columns {
		if i > 0 {
			columns += ", "
		}
		switch col {
		case "ssn_match", "name_score", "address_score":
			columns += col + " REAL"
		case "jib", "rev", "vendor":
			columns += col + " INTEGER"
		default:
			columns += col + " TEXT"
		}
	}
	return ds.DB.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ds.Table, columns)).Error
}

func main() {
	outDir := flag.String("out", "data", "output directory")
	rowCount := flag.Int("rows", 200, "number of sample rows")
	withSQLite := flag.Bool("sqlite", false, "also seed a sqlite datasource")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}
	rows := sampleRows(*rowCount, rng)

	workbookPath := filepath.Join(*outDir, "sample_matches.xlsx")
	workbook := &datasource.SpreadsheetDataset{Path: workbookPath}
	if err := workbook.Save(ctx, rows); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write workbook: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d rows to %s\n", len(rows), workbookPath)

	registry := config.DatasourceRegistry{
		Datasources: map[string]config.DatasourceConfig{
			"sample_excel": {
				Name:       "Sample workbook",
				SourceType: "excel",
				FilePath:   workbookPath,
			},
		},
		Active: "sample_excel",
	}

	if *withSQLite {
		dbPath := filepath.Join(*outDir, "review_data.db")
		ds, err := datasource.OpenSQLite(dbPath, "matches")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open sqlite database: %v\n", err)
			os.Exit(1)
		}
		if err := createMatchTable(ds); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create table: %v\n", err)
			os.Exit(1)
		}
		if err := ds.Save(ctx, rows); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed sqlite database: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d rows into %s\n", len(rows), dbPath)
		registry.Datasources["sample_sqlite"] = config.DatasourceConfig{
			Name:       "Sample sqlite",
			SourceType: "sqlite",
			DBPath:     dbPath,
			TableName:  "matches",
		}
	}

	raw, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode registry: %v\n", err)
		os.Exit(1)
	}
	registryPath := "datasources.json"
	if err := os.WriteFile(registryPath, raw, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", registryPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (active: %s)\n", registryPath, registry.Active)
}
