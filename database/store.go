package database

import (
	"errors"
	"time"

	"github.com/anjiri1684/mentor_payouts/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
	ErrDuplicate       = errors.New("record already exists")
)

type SessionFilter struct {
	MentorID string
	Status   models.SessionStatus
	From     time.Time
	To       time.Time
}

func (f SessionFilter) matches(s models.Session) bool {
	if f.MentorID != "" && s.MentorID != f.MentorID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && s.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.Date.After(f.To) {
		return false
	}
	return true
}

type PayoutFilter struct {
	MentorID string
	Statuses []models.PayoutStatus
}

func (f PayoutFilter) matches(p *models.Payout) bool {
	if f.MentorID != "" && p.MentorID != f.MentorID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}
