package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "Scheduled"
	SessionCompleted SessionStatus = "Completed"
	SessionCancelled SessionStatus = "Cancelled"
)

var minutesPerHour = decimal.NewFromInt(60)

// Session is one billable unit of mentoring work.
type Session struct {
	ID          string           `gorm:"type:uuid;primary_key" json:"id"`
	MentorID    string           `gorm:"size:64;not null;index" json:"mentor_id"`
	MentorName  string           `gorm:"size:255;not null" json:"mentor_name"`
	Date        time.Time        `gorm:"not null;index" json:"date"`
	Duration    int              `gorm:"not null" json:"duration"`
	RatePerHour decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"rate_per_hour"`
	Status      SessionStatus    `gorm:"size:20;not null;default:'Scheduled'" json:"status"`
	Amount      *decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payable is the precomputed amount when present, otherwise ratePerHour × duration/60.
func (s Session) Payable() decimal.Decimal {
	if s.Amount != nil {
		return *s.Amount
	}
	return s.RatePerHour.Mul(decimal.NewFromInt(int64(s.Duration))).Div(minutesPerHour)
}

func (s Session) IsCompleted() bool {
	return s.Status == SessionCompleted
}
