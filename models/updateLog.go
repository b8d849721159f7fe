package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
)

// UpdateLog is one immutable audit-trail entry: a persisted field change on
// a row addressed by the external composite key. Entries are written once
// per persisted change at save time; local edits that never reach the store
// never appear here.
type UpdateLog struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CanvasID  string    `gorm:"size:64;index" json:"canvas_id"`
	CanvasSSN string    `gorm:"size:32;index" json:"canvas_ssn"`
	FieldName string    `gorm:"size:64;not null" json:"field_name"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func MigrateTables() error {
	db := config.GetDB()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	return db.AutoMigrate(&UpdateLog{})
}

// AuditStore is the append-only audit trail consumed by the persistence
// gateway. Audit writes are diagnostic, not a source of truth; failures are
// reported but never block a data commit.
type AuditStore interface {
	Append(ctx context.Context, entries []UpdateLog) error
	ReadRecent(ctx context.Context, limit int) ([]UpdateLog, error)
}

// GormAuditStore persists the audit trail through the shared gorm handle.
type GormAuditStore struct{}

func (GormAuditStore) Append(ctx context.Context, entries []UpdateLog) error {
	if len(entries) == 0 {
		return nil
	}
	db := config.GetDB()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (GormAuditStore) ReadRecent(ctx context.Context, limit int) ([]UpdateLog, error) {
	db := config.GetDB()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if limit <= 0 {
		limit = 100
	}
	var entries []UpdateLog
	err := db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
