package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending     PayoutStatus = "Pending"
	PayoutUnderReview PayoutStatus = "UnderReview"
	PayoutPaid        PayoutStatus = "Paid"
	PayoutFailed      PayoutStatus = "Failed"
)

// IsOpen reports whether a payout in this status can still absorb sessions.
func (s PayoutStatus) IsOpen() bool {
	return s == PayoutPending || s == PayoutUnderReview
}

func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutPaid || s == PayoutFailed
}

// Payout is a settlement unit (receipt) for one mentor over a set of sessions.
type Payout struct {
	ID            string         `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptNumber string         `gorm:"size:20;not null;unique" json:"receipt_number"`
	MentorID      string         `gorm:"size:64;not null;index" json:"mentor_id"`
	MentorName    string         `gorm:"size:255;not null" json:"mentor_name"`
	Country       string         `gorm:"size:64;not null" json:"country"`
	Currency      string         `gorm:"size:3;not null" json:"currency"`
	Sessions      pq.StringArray `gorm:"type:text[];not null" json:"sessions"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	PlatformFee decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"platform_fee"`
	GST         decimal.Decimal `gorm:"column:gst;type:numeric(12,2);not null" json:"gst"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`

	Status            PayoutStatus `gorm:"size:20;not null;default:'Pending';index" json:"status"`
	Notes             string       `gorm:"type:text" json:"notes"`
	TransferReference *string      `gorm:"size:255" json:"transfer_reference,omitempty"`
	SettledAt         *time.Time   `json:"settled_at,omitempty"`
	Version           int          `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payout) HasSession(sessionID string) bool {
	for _, id := range p.Sessions {
		if id == sessionID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the session slice.
func (p *Payout) Clone() *Payout {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Sessions = append(pq.StringArray(nil), p.Sessions...)
	if p.TransferReference != nil {
		ref := *p.TransferReference
		cp.TransferReference = &ref
	}
	if p.SettledAt != nil {
		at := *p.SettledAt
		cp.SettledAt = &at
	}
	return &cp
}
