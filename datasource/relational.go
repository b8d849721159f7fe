package datasource

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

// RelationalDataset serves rows from one table in a MySQL or SQLite
// database through gorm. MergeFields issues per-field UPDATEs keyed by the
// external composite key; Save is a full table rewrite.
type RelationalDataset struct {
	DB    *gorm.DB
	Table string
	kind  string
}

func OpenSQLite(dbPath, table string) (*RelationalDataset, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(dbPath), relationalConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	return &RelationalDataset{DB: db, Table: table, kind: "sqlite"}, nil
}

func OpenMySQL(dsn, table string) (*RelationalDataset, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), relationalConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return &RelationalDataset{DB: db, Table: table, kind: "mysql"}, nil
}

func relationalConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				Colorful:      false,
				LogLevel:      gormlogger.Error,
				SlowThreshold: time.Second,
			},
		),
	}
}

func (d *RelationalDataset) Kind() string { return d.kind }

func (d *RelationalDataset) Load(ctx context.Context) ([]*models.Row, error) {
	var results []map[string]any
	if err := d.DB.WithContext(ctx).Table(d.Table).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", d.Table, err)
	}
	records := make([]models.RawRecord, len(results))
	for i, result := range results {
		records[i] = models.RawRecord(result)
	}
	return models.NormalizeRecords(records), nil
}

// Save replaces the whole table contents in one transaction.
func (d *RelationalDataset) Save(ctx context.Context, rows []*models.Row) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(d.Table).Where("1 = 1").Delete(nil).Error; err != nil {
			return fmt.Errorf("clear %s: %w", d.Table, err)
		}
		if len(rows) == 0 {
			return nil
		}
		batch := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]any, len(models.Columns))
			for _, col := range models.Columns {
				record[col] = row.Get(col)
			}
			batch = append(batch, record)
		}
		if err := tx.Table(d.Table).CreateInBatches(batch, 500).Error; err != nil {
			return fmt.Errorf("rewrite %s: %w", d.Table, err)
		}
		return nil
	})
}

func (d *RelationalDataset) MergeFields(ctx context.Context, updates []models.FieldUpdate) (int, error) {
	affected := 0
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			if !models.IsColumn(update.Field) {
				return fmt.Errorf("unknown column %q", update.Field)
			}
			res := tx.Table(d.Table).
				Where("canvas_id = ? AND canvas_ssn = ?", update.CanvasID, update.CanvasSSN).
				Update(update.Field, update.Value)
			if res.Error != nil {
				return res.Error
			}
			affected += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("merge into %s: %w", d.Table, err)
	}
	return affected, nil
}
