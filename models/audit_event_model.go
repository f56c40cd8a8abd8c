package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActorSystem    = "System"
	CategoryPayout = "Payout"
)

// AuditEvent is an append-only record of a payout lifecycle change.
type AuditEvent struct {
	ID          string            `gorm:"type:uuid;primary_key" json:"id"`
	Timestamp   time.Time         `gorm:"not null;index" json:"timestamp"`
	Actor       string            `gorm:"size:255;not null" json:"actor"`
	Category    string            `gorm:"size:50;not null;index" json:"category"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Details     datatypes.JSONMap `gorm:"type:jsonb" json:"details"`
}
