package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Mentor struct {
	ID        string          `gorm:"size:64;primary_key" json:"id"`
	FirstName string          `gorm:"size:100;not null" json:"first_name"`
	LastName  string          `gorm:"size:100" json:"last_name"`
	Email     string          `gorm:"size:255;unique" json:"email"`
	Country   string          `gorm:"size:64;not null;default:'Default'" json:"country"`
	BaseRate  decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"base_rate"`
	IsActive  bool            `gorm:"default:true" json:"is_active"`

	PayPalEmail     *string `gorm:"size:255" json:"paypal_email,omitempty"`
	StripeAccountID *string `gorm:"size:255" json:"stripe_account_id,omitempty"`
	BankName        *string `gorm:"size:255" json:"bank_name,omitempty"`
	AccountNumber   *string `gorm:"size:64" json:"-"`
	IFSCCode        *string `gorm:"size:20" json:"ifsc_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m Mentor) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}
