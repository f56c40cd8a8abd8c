package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/metrics"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/utils"
)

// LedgerStore is the persistence surface the ledger needs.
type LedgerStore interface {
	GetSessionsByIDs(ctx context.Context, ids []string) ([]models.Session, error)
	GetMentor(ctx context.Context, id string) (*models.Mentor, error)
	GetPayout(ctx context.Context, id string) (*models.Payout, error)
	ListPayouts(ctx context.Context, filter database.PayoutFilter) ([]models.Payout, error)
	FindPayoutBySession(ctx context.Context, sessionID string) (*models.Payout, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
	UpdatePayout(ctx context.Context, payout *models.Payout, expectedVersion int) error
	ReceiptNumberExists(ctx context.Context, number string) (bool, error)
}

type LedgerConfig struct {
	Store        LedgerStore
	Locker       database.MentorLocker
	Calculator   *PayoutCalculator
	Machine      *StatusMachine
	Currency     string
	StoreTimeout time.Duration
	Logger       logging.Logger

	// MaxConflictRetries bounds optimistic-concurrency retries per operation.
	MaxConflictRetries int
	Now                func() time.Time
}

// PayoutLedger is the only writer of payout records.
type PayoutLedger struct {
	store        LedgerStore
	locker       database.MentorLocker
	calc         *PayoutCalculator
	machine      *StatusMachine
	currency     string
	storeTimeout time.Duration
	logger       logging.Logger
	now          func() time.Time
	retry        failsafe.Executor[*models.Payout]
}

func NewPayoutLedger(cfg LedgerConfig) *PayoutLedger {
	if cfg.Locker == nil {
		cfg.Locker = database.NewLocalMentorLocker()
	}
	if cfg.Calculator == nil {
		cfg.Calculator = NewPayoutCalculator(nil)
	}
	if cfg.Machine == nil {
		cfg.Machine = NewStatusMachine(DefaultReviewThreshold)
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = 3
	}

	policy := retrypolicy.NewBuilder[*models.Payout]().
		HandleIf(func(_ *models.Payout, err error) bool {
			return errors.Is(err, ErrLedgerConflict)
		}).
		WithBackoff(5*time.Millisecond, 200*time.Millisecond).
		WithMaxRetries(cfg.MaxConflictRetries).
		WithJitterFactor(0.1).
		Build()

	return &PayoutLedger{
		store:        cfg.Store,
		locker:       cfg.Locker,
		calc:         cfg.Calculator,
		machine:      cfg.Machine,
		currency:     cfg.Currency,
		storeTimeout: cfg.StoreTimeout,
		logger:       cfg.Logger,
		now:          cfg.Now,
		retry:        failsafe.With[*models.Payout](policy),
	}
}

func (l *PayoutLedger) Calculator() *PayoutCalculator { return l.calc }

func (l *PayoutLedger) Machine() *StatusMachine { return l.machine }

func (l *PayoutLedger) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.storeTimeout)
}

// withMentor runs fn under the mentor's lock, retrying ledger conflicts.
func (l *PayoutLedger) withMentor(ctx context.Context, mentorID string, fn func(context.Context) (*models.Payout, error)) (*models.Payout, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	unlock, err := l.locker.Lock(ctx, mentorID)
	if err != nil {
		return nil, persistenceErr("lock mentor", err)
	}
	defer unlock()

	var lastErr error
	payout, err := l.retry.WithContext(ctx).Get(func() (*models.Payout, error) {
		p, err := fn(ctx)
		if errors.Is(err, ErrLedgerConflict) {
			metrics.LedgerConflictsTotal.Inc()
		}
		lastErr = err
		return p, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, persistenceErr("ledger operation", ctxErr)
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return payout, nil
}

func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return ErrPayoutNotFound
	case errors.Is(err, database.ErrVersionConflict):
		return ErrLedgerConflict
	default:
		return persistenceErr(op, err)
	}
}

func (l *PayoutLedger) mentorCountry(ctx context.Context, mentorID string) (string, error) {
	mentor, err := l.store.GetMentor(ctx, mentorID)
	if errors.Is(err, database.ErrNotFound) {
		return DefaultCountry, nil
	}
	if err != nil {
		return "", persistenceErr("get mentor", err)
	}
	if strings.TrimSpace(mentor.Country) == "" {
		return DefaultCountry, nil
	}
	return mentor.Country, nil
}

// claimedBy returns the payout already holding sessionID, or nil.
func (l *PayoutLedger) claimedBy(ctx context.Context, sessionID string) (*models.Payout, error) {
	p, err := l.store.FindPayoutBySession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr("find payout by session", err)
	}
	return p, nil
}

func (l *PayoutLedger) openPayout(ctx context.Context, mentorID string) (*models.Payout, error) {
	open, err := l.store.ListPayouts(ctx, database.PayoutFilter{
		MentorID: mentorID,
		Statuses: []models.PayoutStatus{models.PayoutPending, models.PayoutUnderReview},
	})
	if err != nil {
		return nil, persistenceErr("list open payouts", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	if len(open) > 1 {
		l.logger.WithFields(logging.Fields{
			"mentor_id": mentorID,
			"open":      len(open),
		}).Warn("Mentor has more than one open payout, extending the oldest")
	}
	p := open[0]
	return &p, nil
}

// sessionsFor loads the stored sessions of ids and overlays the given ones.
func (l *PayoutLedger) sessionsFor(ctx context.Context, ids []string, overlay []models.Session) ([]models.Session, error) {
	given := make(map[string]struct{}, len(overlay))
	for _, s := range overlay {
		given[s.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := given[id]; !ok {
			missing = append(missing, id)
		}
	}
	all := append([]models.Session(nil), overlay...)
	if len(missing) == 0 {
		return all, nil
	}
	stored, err := l.store.GetSessionsByIDs(ctx, missing)
	if err != nil {
		return nil, persistenceErr("load sessions", err)
	}
	return append(all, stored...), nil
}

// apply recomputes totals, period and status of p from the given session set.
func (l *PayoutLedger) apply(p *models.Payout, ids []string, all []models.Session) error {
	calc, err := l.calc.Calculate(ids, all, p.Country)
	if err != nil {
		return err
	}
	p.Sessions = pq.StringArray(ids)
	p.Subtotal = calc.Subtotal
	p.PlatformFee = calc.PlatformFee
	p.GST = calc.GST
	p.TotalAmount = calc.TotalAmount
	p.PeriodStart, p.PeriodEnd = sessionPeriod(calc.Sessions)
	p.Status = l.machine.Evaluate(calc.TotalAmount, p.Status)
	return nil
}

func sessionPeriod(sessions []models.Session) (time.Time, time.Time) {
	var start, end time.Time
	for i, s := range sessions {
		if i == 0 || s.Date.Before(start) {
			start = s.Date
		}
		if i == 0 || s.Date.After(end) {
			end = s.Date
		}
	}
	return start, end
}

func (l *PayoutLedger) newPayout(ctx context.Context, mentorID, mentorName, notes string) (*models.Payout, error) {
	number, err := utils.GenerateUniqueReceiptNumber(ctx, l.store.ReceiptNumberExists)
	if err != nil {
		return nil, persistenceErr("generate receipt number", err)
	}
	country, err := l.mentorCountry(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	return &models.Payout{
		ID:            uuid.NewString(),
		ReceiptNumber: number,
		MentorID:      mentorID,
		MentorName:    mentorName,
		Country:       country,
		Currency:      l.currency,
		Notes:         notes,
	}, nil
}

func (l *PayoutLedger) save(ctx context.Context, p *models.Payout, isNew bool) error {
	if isNew {
		return storeErr("create payout", l.store.CreatePayout(ctx, p))
	}
	return storeErr("update payout", l.store.UpdatePayout(ctx, p, p.Version))
}

// MergeSession folds a completed session into the mentor's open payout,
// opening one if none exists. Re-merging a session already held by any
// payout is a no-op that returns that payout.
func (l *PayoutLedger) MergeSession(ctx context.Context, session models.Session) (*models.Payout, error) {
	if !session.IsCompleted() {
		return nil, ErrSessionNotCompleted
	}
	if err := validateSession(session); err != nil {
		return nil, err
	}

	return l.withMentor(ctx, session.MentorID, func(ctx context.Context) (*models.Payout, error) {
		if existing, err := l.claimedBy(ctx, session.ID); err != nil || existing != nil {
			return existing, err
		}

		payout, err := l.openPayout(ctx, session.MentorID)
		if err != nil {
			return nil, err
		}
		isNew := payout == nil
		if isNew {
			if payout, err = l.newPayout(ctx, session.MentorID, session.MentorName, ""); err != nil {
				return nil, err
			}
		}

		ids := append(append([]string(nil), payout.Sessions...), session.ID)
		all, err := l.sessionsFor(ctx, ids, []models.Session{session})
		if err != nil {
			return nil, err
		}
		if err := l.apply(payout, ids, all); err != nil {
			return nil, err
		}
		if err := l.save(ctx, payout, isNew); err != nil {
			return nil, err
		}

		metrics.PayoutsGeneratedTotal.WithLabelValues(string(payout.Status)).Inc()
		l.logger.WithFields(logging.Fields{
			"payout_id":  payout.ID,
			"mentor_id":  payout.MentorID,
			"session_id": session.ID,
			"total":      payout.TotalAmount.String(),
			"status":     payout.Status,
			"created":    isNew,
		}).Info("Merged session into payout")
		return payout, nil
	})
}

type ReceiptRequest struct {
	MentorID   string
	MentorName string
	SessionIDs []string
	Notes      string
}

// CreateReceipt builds a payout over an explicit session set. Sessions that
// are not completed, belong to another mentor, or are already held by a
// payout are left out. A mentor has at most one open payout, so when one
// exists the eligible sessions extend it instead of opening a second.
// When all is nil the sessions are loaded from the store.
func (l *PayoutLedger) CreateReceipt(ctx context.Context, req ReceiptRequest, all []models.Session) (*models.Payout, error) {
	p, _, err := l.GenerateReceipt(ctx, req, all)
	return p, err
}

// GenerateReceipt is CreateReceipt that also reports how many sessions were
// added. Zero means the mentor's open payout came back unchanged.
func (l *PayoutLedger) GenerateReceipt(ctx context.Context, req ReceiptRequest, all []models.Session) (*models.Payout, int, error) {
	ids := dedupe(req.SessionIDs)

	var added int
	payout, err := l.withMentor(ctx, req.MentorID, func(ctx context.Context) (*models.Payout, error) {
		added = 0
		candidates := all
		if candidates == nil {
			loaded, err := l.store.GetSessionsByIDs(ctx, ids)
			if err != nil {
				return nil, persistenceErr("load sessions", err)
			}
			candidates = loaded
		}
		byID := make(map[string]models.Session, len(candidates))
		for _, s := range candidates {
			byID[s.ID] = s
		}

		var eligible []models.Session
		for _, id := range ids {
			s, ok := byID[id]
			if !ok || !s.IsCompleted() || s.MentorID != req.MentorID {
				continue
			}
			holder, err := l.claimedBy(ctx, id)
			if err != nil {
				return nil, err
			}
			if holder != nil {
				continue
			}
			eligible = append(eligible, s)
		}

		payout, err := l.openPayout(ctx, req.MentorID)
		if err != nil {
			return nil, err
		}
		if len(eligible) == 0 {
			if payout != nil {
				return payout, nil
			}
			return nil, ErrNoEligibleSessions
		}

		isNew := payout == nil
		if isNew {
			name := req.MentorName
			if name == "" {
				name = eligible[0].MentorName
			}
			if payout, err = l.newPayout(ctx, req.MentorID, name, req.Notes); err != nil {
				return nil, err
			}
		} else if req.Notes != "" && !strings.Contains(payout.Notes, req.Notes) {
			payout.Notes = strings.TrimSpace(payout.Notes + "\n" + req.Notes)
		}

		nextIDs := append([]string(nil), payout.Sessions...)
		for _, s := range eligible {
			nextIDs = append(nextIDs, s.ID)
		}
		sessions, err := l.sessionsFor(ctx, nextIDs, eligible)
		if err != nil {
			return nil, err
		}
		if err := l.apply(payout, nextIDs, sessions); err != nil {
			return nil, err
		}
		if err := l.save(ctx, payout, isNew); err != nil {
			return nil, err
		}

		metrics.PayoutsGeneratedTotal.WithLabelValues(string(payout.Status)).Inc()
		l.logger.WithFields(logging.Fields{
			"payout_id": payout.ID,
			"mentor_id": payout.MentorID,
			"sessions":  len(payout.Sessions),
			"added":     len(eligible),
			"total":     payout.TotalAmount.String(),
			"status":    payout.Status,
			"created":   isNew,
		}).Info("Generated payout receipt")
		added = len(eligible)
		return payout, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return payout, added, nil
}

// EditSession runs save under the lock of the session's mentor, so a merge
// cannot claim the session halfway through an edit. A session already held
// by a payout is not saved; its payout is returned with ErrSessionClaimed.
func (l *PayoutLedger) EditSession(ctx context.Context, mentorID, sessionID string, save func(context.Context) error) (*models.Payout, error) {
	var holder *models.Payout
	_, err := l.withMentor(ctx, mentorID, func(ctx context.Context) (*models.Payout, error) {
		p, err := l.claimedBy(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			holder = p
			return nil, ErrSessionClaimed
		}
		return nil, save(ctx)
	})
	return holder, err
}

type statusOptions struct {
	transferReference string
	note              string
}

type StatusOption func(*statusOptions)

func WithTransferReference(ref string) StatusOption {
	return func(o *statusOptions) { o.transferReference = ref }
}

func WithStatusNote(note string) StatusOption {
	return func(o *statusOptions) { o.note = note }
}

// UpdateStatus moves a payout to newStatus if the state machine allows it.
func (l *PayoutLedger) UpdateStatus(ctx context.Context, payoutID string, newStatus models.PayoutStatus, opts ...StatusOption) (*models.Payout, error) {
	var o statusOptions
	for _, opt := range opts {
		opt(&o)
	}

	current, err := l.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	return l.withMentor(ctx, current.MentorID, func(ctx context.Context) (*models.Payout, error) {
		payout, err := l.store.GetPayout(ctx, payoutID)
		if err != nil {
			return nil, storeErr("get payout", err)
		}
		if err := l.machine.Transition(payout.ID, payout.Status, newStatus); err != nil {
			return nil, err
		}

		from := payout.Status
		l.setStatus(payout, newStatus, o)
		if err := l.save(ctx, payout, false); err != nil {
			return nil, err
		}

		l.logger.WithFields(logging.Fields{
			"payout_id": payout.ID,
			"mentor_id": payout.MentorID,
			"from":      from,
			"to":        newStatus,
		}).Info("Payout status updated")
		return payout, nil
	})
}

func (l *PayoutLedger) setStatus(p *models.Payout, status models.PayoutStatus, o statusOptions) {
	p.Status = status
	if status.IsTerminal() {
		at := l.now()
		p.SettledAt = &at
	}
	if o.transferReference != "" {
		ref := o.transferReference
		p.TransferReference = &ref
	}
	if o.note != "" {
		p.Notes = strings.TrimSpace(p.Notes + "\n" + o.note)
	}
}

// CompleteSettlement records the terminal outcome of a transfer made for
// snapshot. The payout is settled over exactly the sessions and amounts
// snapshot held. Sessions merged into it after snapshot was read were not
// part of the transfer; they move to a new open payout, returned as carried.
func (l *PayoutLedger) CompleteSettlement(ctx context.Context, snapshot *models.Payout, newStatus models.PayoutStatus, opts ...StatusOption) (settled, carried *models.Payout, err error) {
	if !newStatus.IsTerminal() {
		return nil, nil, &InvalidTransitionError{PayoutID: snapshot.ID, From: snapshot.Status, To: newStatus}
	}
	var o statusOptions
	for _, opt := range opts {
		opt(&o)
	}

	settled, err = l.withMentor(ctx, snapshot.MentorID, func(ctx context.Context) (*models.Payout, error) {
		carried = nil
		payout, err := l.store.GetPayout(ctx, snapshot.ID)
		if err != nil {
			return nil, storeErr("get payout", err)
		}
		if err := l.machine.Transition(payout.ID, payout.Status, newStatus); err != nil {
			return nil, err
		}

		extra := sessionsAfter(snapshot.Sessions, payout.Sessions)
		if len(extra) > 0 {
			payout.Sessions = append(pq.StringArray(nil), snapshot.Sessions...)
			payout.Subtotal = snapshot.Subtotal
			payout.PlatformFee = snapshot.PlatformFee
			payout.GST = snapshot.GST
			payout.TotalAmount = snapshot.TotalAmount
			payout.PeriodStart, payout.PeriodEnd = snapshot.PeriodStart, snapshot.PeriodEnd
		}
		from := payout.Status
		l.setStatus(payout, newStatus, o)
		if err := l.save(ctx, payout, false); err != nil {
			return nil, err
		}
		l.logger.WithFields(logging.Fields{
			"payout_id": payout.ID,
			"mentor_id": payout.MentorID,
			"from":      from,
			"to":        newStatus,
			"total":     payout.TotalAmount.String(),
		}).Info("Payout settled")

		if len(extra) == 0 {
			return payout, nil
		}
		next, err := l.newPayout(ctx, payout.MentorID, payout.MentorName, "")
		if err != nil {
			return nil, err
		}
		sessions, err := l.sessionsFor(ctx, extra, nil)
		if err != nil {
			return nil, err
		}
		if err := l.apply(next, extra, sessions); err != nil {
			return nil, err
		}
		if err := l.save(ctx, next, true); err != nil {
			return nil, err
		}
		carried = next
		metrics.PayoutsGeneratedTotal.WithLabelValues(string(next.Status)).Inc()
		l.logger.WithFields(logging.Fields{
			"payout_id": next.ID,
			"from_id":   payout.ID,
			"mentor_id": next.MentorID,
			"sessions":  len(extra),
			"total":     next.TotalAmount.String(),
		}).Info("Carried sessions merged during settlement into a new payout")
		return payout, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return settled, carried, nil
}

// sessionsAfter returns the ids in current that are not in snapshot.
func sessionsAfter(snapshot, current []string) []string {
	seen := make(map[string]struct{}, len(snapshot))
	for _, id := range snapshot {
		seen[id] = struct{}{}
	}
	var extra []string
	for _, id := range current {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	return extra
}

func (l *PayoutLedger) Get(ctx context.Context, payoutID string) (*models.Payout, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()
	p, err := l.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, storeErr("get payout", err)
	}
	return p, nil
}

func (l *PayoutLedger) List(ctx context.Context, filter database.PayoutFilter) ([]models.Payout, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()
	payouts, err := l.store.ListPayouts(ctx, filter)
	if err != nil {
		return nil, persistenceErr("list payouts", err)
	}
	return payouts, nil
}

// Preview calculates a payout for the mentor over sessionIDs without persisting.
func (l *PayoutLedger) Preview(ctx context.Context, mentorID string, sessionIDs []string) (Calculation, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()
	country, err := l.mentorCountry(ctx, mentorID)
	if err != nil {
		return Calculation{}, err
	}
	ids := dedupe(sessionIDs)
	sessions, err := l.store.GetSessionsByIDs(ctx, ids)
	if err != nil {
		return Calculation{}, persistenceErr("load sessions", err)
	}
	return l.calc.Calculate(ids, sessions, country)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
