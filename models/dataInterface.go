package models

import "context"

// FieldUpdate is one targeted cell write addressed by the external
// composite key, used for merge-style persistence.
type FieldUpdate struct {
	CanvasID  string
	CanvasSSN string
	Field     string
	Value     any
}

// Dataset abstracts the backing store (spreadsheet, relational table or
// warehouse). Load returns the full normalized row set; Save is a
// best-effort full rewrite; MergeFields applies targeted per-field updates
// where the backend supports them.
type Dataset interface {
	Kind() string
	Load(ctx context.Context) ([]*Row, error)
	Save(ctx context.Context, rows []*Row) error
	MergeFields(ctx context.Context, updates []FieldUpdate) (int, error)
}
