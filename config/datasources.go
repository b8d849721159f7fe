package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
)

// DatasourceConfig describes one entry in datasources.json. Exactly one
// backend's fields are meaningful depending on SourceType.
type DatasourceConfig struct {
	Name       string `json:"name,omitempty"`
	SourceType string `json:"source_type" validate:"required,oneof=excel csv sqlite mysql snowflake"`

	// excel / csv
	FilePath string `json:"file_path,omitempty"`

	// sqlite / mysql
	DBPath    string `json:"db_path,omitempty"`
	DSN       string `json:"dsn,omitempty"`
	TableName string `json:"table_name,omitempty"`

	// snowflake
	Account   string `json:"account,omitempty"`
	User      string `json:"user,omitempty"`
	Password  string `json:"password,omitempty"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Table     string `json:"table,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
}

func (c DatasourceConfig) DisplayName(fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	if c.SourceType != "" {
		return c.SourceType
	}
	return fallback
}

// DatasourceRegistry is the parsed datasources.json: a named set of source
// configurations plus the id of the active one.
type DatasourceRegistry struct {
	Datasources map[string]DatasourceConfig `json:"datasources"`
	Active      string                      `json:"active"`

	path string
}

var validate = validator.New()

func LoadDatasourceRegistry(path string) (*DatasourceRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasource registry: %w", err)
	}
	var reg DatasourceRegistry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse datasource registry: %w", err)
	}
	if len(reg.Datasources) == 0 {
		return nil, fmt.Errorf("datasource registry %s defines no datasources", path)
	}
	for id, cfg := range reg.Datasources {
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("datasource %q: %w", id, err)
		}
	}
	if reg.Active == "" {
		reg.Active = reg.IDs()[0]
	}
	if _, ok := reg.Datasources[reg.Active]; !ok {
		return nil, fmt.Errorf("active datasource %q is not defined", reg.Active)
	}
	reg.path = path
	return &reg, nil
}

func (r *DatasourceRegistry) IDs() []string {
	ids := make([]string, 0, len(r.Datasources))
	for id := range r.Datasources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *DatasourceRegistry) ActiveConfig() DatasourceConfig {
	return r.Datasources[r.Active]
}

func (r *DatasourceRegistry) Get(id string) (DatasourceConfig, bool) {
	cfg, ok := r.Datasources[id]
	return cfg, ok
}

// SetActive switches the active source and writes the registry file back so
// the choice survives restarts. An optional filePath override updates an
// excel/csv source's file before activation.
func (r *DatasourceRegistry) SetActive(id string, filePath string) error {
	cfg, ok := r.Datasources[id]
	if !ok {
		return fmt.Errorf("datasource %q is not defined", id)
	}
	if filePath != "" && (cfg.SourceType == "excel" || cfg.SourceType == "csv") {
		cfg.FilePath = filePath
		r.Datasources[id] = cfg
	}
	r.Active = id
	return r.write()
}

func (r *DatasourceRegistry) write() error {
	if r.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, raw, 0o644)
}
