// Package datasource provides the backing-store implementations behind the
// review session: spreadsheet files, relational tables and the Snowflake
// warehouse, all normalized into the same row shape.
package datasource

import (
	"fmt"
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// Open builds a Dataset for one registry entry.
func Open(cfg config.DatasourceConfig) (models.Dataset, error) {
	switch strings.ToLower(cfg.SourceType) {
	case "excel", "csv":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("datasource %q requires file_path", cfg.SourceType)
		}
		return &SpreadsheetDataset{Path: cfg.FilePath}, nil
	case "sqlite":
		if cfg.DBPath == "" || cfg.TableName == "" {
			return nil, fmt.Errorf("sqlite datasource requires db_path and table_name")
		}
		return OpenSQLite(cfg.DBPath, cfg.TableName)
	case "mysql":
		if cfg.DSN == "" || cfg.TableName == "" {
			return nil, fmt.Errorf("mysql datasource requires dsn and table_name")
		}
		return OpenMySQL(cfg.DSN, cfg.TableName)
	case "snowflake":
		return OpenSnowflake(cfg)
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.SourceType)
}
