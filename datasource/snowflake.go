package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// SnowflakeDataset serves rows from one warehouse table over the standard
// database/sql driver.
type SnowflakeDataset struct {
	DB    *sql.DB
	Table string
}

func OpenSnowflake(cfg config.DatasourceConfig) (*SnowflakeDataset, error) {
	if cfg.Account == "" || cfg.User == "" || cfg.Database == "" || cfg.Table == "" {
		return nil, fmt.Errorf("snowflake datasource requires account, user, database and table")
	}
	if err := validIdentifier(cfg.Table); err != nil {
		return nil, err
	}
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		return nil, fmt.Errorf("build snowflake dsn: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake: %w", err)
	}
	return &SnowflakeDataset{DB: db, Table: cfg.Table}, nil
}

func (d *SnowflakeDataset) Kind() string { return "snowflake" }

func (d *SnowflakeDataset) Load(ctx context.Context) ([]*models.Row, error) {
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", d.Table))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", d.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []models.RawRecord
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		rec := make(models.RawRecord, len(columns))
		for i, col := range columns {
			// Warehouse column names come back upper-cased.
			rec[strings.ToLower(col)] = normalizeSQLValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return models.NormalizeRecords(records), nil
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Save rewrites the table contents. The row set is review-session sized, so
// a delete-and-reinsert inside one transaction is sufficient.
func (d *SnowflakeDataset) Save(ctx context.Context, rows []*models.Row) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", d.Table)); err != nil {
		return fmt.Errorf("clear %s: %w", d.Table, err)
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(models.Columns)), ",") + ")"
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		d.Table, strings.Join(models.Columns, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(models.Columns))
	for _, row := range rows {
		for i, col := range models.Columns {
			args[i] = row.Get(col)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("rewrite %s: %w", d.Table, err)
		}
	}
	return tx.Commit()
}

func (d *SnowflakeDataset) MergeFields(ctx context.Context, updates []models.FieldUpdate) (int, error) {
	affected := 0
	for _, update := range updates {
		if !models.IsColumn(update.Field) {
			return affected, fmt.Errorf("unknown column %q", update.Field)
		}
		res, err := d.DB.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = ? WHERE canvas_id = ? AND canvas_ssn = ?", d.Table, update.Field),
			utils.Stringify(update.Value), update.CanvasID, update.CanvasSSN,
		)
		if err != nil {
			return affected, fmt.Errorf("merge into %s: %w", d.Table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += int(n)
		}
	}
	return affected, nil
}
