package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anjiri1684/mentor_payouts/models"
)

// MemoryStore keeps sessions, mentors, payouts and audit events in process.
// It backs STORE_DRIVER=memory and the package tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	mentors  map[string]models.Mentor
	payouts  map[string]*models.Payout
	audit    []models.AuditEvent
	users    map[string]models.User
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		mentors:  make(map[string]models.Mentor),
		payouts:  make(map[string]*models.Payout),
		users:    make(map[string]models.User),
		now:      time.Now,
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.sessions[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) GetSessionsByIDs(_ context.Context, ids []string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Session
	for _, s := range m.sessions {
		if filter.matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) SaveMentor(_ context.Context, mentor *models.Mentor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if mentor.CreatedAt.IsZero() {
		mentor.CreatedAt = now
	}
	mentor.UpdatedAt = now
	m.mentors[mentor.ID] = *mentor
	return nil
}

func (m *MemoryStore) GetMentor(_ context.Context, id string) (*models.Mentor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mentor, ok := m.mentors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &mentor, nil
}

func (m *MemoryStore) ListMentors(_ context.Context) ([]models.Mentor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Mentor, 0, len(m.mentors))
	for _, mentor := range m.mentors {
		out = append(out, mentor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetPayout(_ context.Context, id string) (*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) ListPayouts(_ context.Context, filter PayoutFilter) ([]models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Payout
	for _, p := range m.payouts {
		if filter.matches(p) {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) FindPayoutBySession(_ context.Context, sessionID string) (*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payouts {
		if p.HasSession(sessionID) {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ReceiptNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payouts {
		if p.ReceiptNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreatePayout(_ context.Context, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payouts[p.ID]; exists {
		return ErrVersionConflict
	}
	now := m.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Version == 0 {
		p.Version = 1
	}
	m.payouts[p.ID] = p.Clone()
	return nil
}

// UpdatePayout replaces the stored payout when its version still equals
// expectedVersion and bumps p.Version on success.
func (m *MemoryStore) UpdatePayout(_ context.Context, p *models.Payout, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.payouts[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = m.now()
	m.payouts[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) CreateAuditEvent(_ context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *event)
	return nil
}

// ListAuditEvents returns the newest events first.
func (m *MemoryStore) ListAuditEvents(_ context.Context, limit int) ([]models.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AuditEvent, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0; i-- {
		out = append(out, m.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, exists := m.users[key]; exists {
		return ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := m.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[key] = *user
	return nil
}
