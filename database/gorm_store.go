package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/anjiri1684/mentor_payouts/models"
)

// GormStore is the postgres-backed store. It relies only on per-row
// read-modify-write guarded by the payout version column.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) SaveSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *GormStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (s *GormStore) GetSessionsByIDs(ctx context.Context, ids []string) ([]models.Session, error) {
	var sessions []models.Session
	if len(ids) == 0 {
		return sessions, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *GormStore) ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	q := s.db.WithContext(ctx).Model(&models.Session{})
	if filter.MentorID != "" {
		q = q.Where("mentor_id = ?", filter.MentorID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		q = q.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("date <= ?", filter.To)
	}

	var sessions []models.Session
	if err := q.Order("date asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *GormStore) SaveMentor(ctx context.Context, mentor *models.Mentor) error {
	return s.db.WithContext(ctx).Save(mentor).Error
}

func (s *GormStore) GetMentor(ctx context.Context, id string) (*models.Mentor, error) {
	var mentor models.Mentor
	if err := s.db.WithContext(ctx).First(&mentor, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &mentor, nil
}

func (s *GormStore) ListMentors(ctx context.Context) ([]models.Mentor, error) {
	var mentors []models.Mentor
	if err := s.db.WithContext(ctx).Order("id asc").Find(&mentors).Error; err != nil {
		return nil, err
	}
	return mentors, nil
}

func (s *GormStore) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	var payout models.Payout
	if err := s.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &payout, nil
}

func (s *GormStore) ListPayouts(ctx context.Context, filter PayoutFilter) ([]models.Payout, error) {
	q := s.db.WithContext(ctx).Model(&models.Payout{})
	if filter.MentorID != "" {
		q = q.Where("mentor_id = ?", filter.MentorID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var payouts []models.Payout
	if err := q.Order("created_at asc").Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *GormStore) FindPayoutBySession(ctx context.Context, sessionID string) (*models.Payout, error) {
	var payout models.Payout
	if err := s.db.WithContext(ctx).Where("? = ANY(sessions)", sessionID).First(&payout).Error; err != nil {
		return nil, translate(err)
	}
	return &payout, nil
}

func (s *GormStore) ReceiptNumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Payout{}).Where("receipt_number = ?", number).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) CreatePayout(ctx context.Context, payout *models.Payout) error {
	if payout.Version == 0 {
		payout.Version = 1
	}
	return s.db.WithContext(ctx).Create(payout).Error
}

// UpdatePayout writes every column of payout guarded by expectedVersion.
func (s *GormStore) UpdatePayout(ctx context.Context, payout *models.Payout, expectedVersion int) error {
	next := payout.Clone()
	next.Version = expectedVersion + 1

	result := s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND version = ?", payout.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	payout.Version = next.Version
	payout.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *GormStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *GormStore) ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	q := s.db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.AuditEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}
