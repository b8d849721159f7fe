package models

import (
	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// Cache holds the currently loaded row set in memory and is the single
// point of truth for current field values. Row ids are ordinals into this
// cache and are only valid for one generation; a reload or datasource
// switch produces a new generation.
type Cache struct {
	generation string
	rows       []*Row
}

func NewCache(rows []*Row) *Cache {
	for i, row := range rows {
		row.RowID = i
	}
	return &Cache{
		generation: uuid.NewString(),
		rows:       rows,
	}
}

func (c *Cache) Generation() string {
	return c.generation
}

func (c *Cache) Len() int {
	return len(c.rows)
}

func (c *Cache) Rows() []*Row {
	return c.rows
}

// Row returns the row for an ordinal id, or ErrorInvalidRowId when the id
// is outside the current generation.
func (c *Cache) Row(rowID int) (*Row, error) {
	if rowID < 0 || rowID >= len(c.rows) {
		return nil, utils.ErrorInvalidRowId
	}
	return c.rows[rowID], nil
}

// Snapshot copies the row set for handoff to a background writer, so the
// writer never shares row structs with the live cache.
func (c *Cache) Snapshot() []*Row {
	out := make([]*Row, len(c.rows))
	for i, row := range c.rows {
		cp := *row
		out[i] = &cp
	}
	return out
}
