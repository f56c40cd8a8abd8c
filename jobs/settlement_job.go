package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/metrics"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/services"
)

const automatedNote = "Automated weekly payout"

var ErrRunInProgress = errors.New("settlement run already in progress")

type SessionSource interface {
	ListSessions(ctx context.Context, filter database.SessionFilter) ([]models.Session, error)
}

type SchedulerConfig struct {
	Schedule    string
	Window      time.Duration
	Concurrency int
	// RunTimeout bounds one whole run. Zero means no bound.
	RunTimeout time.Duration
	// StopGrace is how long Stop waits for an in-flight run before cancelling it.
	StopGrace time.Duration

	Sessions   SessionSource
	Ledger     *services.PayoutLedger
	Settlement *services.SettlementService
	Audit      *services.AuditService
	Logger     logging.Logger
	Now        func() time.Time
}

// RunReport summarises one settlement run.
type RunReport struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Mentors     int       `json:"mentors"`
	Generated   int       `json:"generated"`
	Paid        int       `json:"paid"`
	Failed      int       `json:"failed"`
	UnderReview int       `json:"under_review"`
	Errors      []string  `json:"errors,omitempty"`

	mu sync.Mutex
}

func (r *RunReport) record(fn func(r *RunReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// SettlementScheduler generates and settles the trailing week's payouts on a
// cron schedule. Runs never overlap.
type SettlementScheduler struct {
	cfg     SchedulerConfig
	logger  logging.Logger
	running atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSettlementScheduler(cfg SchedulerConfig) *SettlementScheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 2 * * 1"
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SettlementScheduler{cfg: cfg, logger: cfg.Logger}
}

// Start registers the weekly run. It is an error to start twice.
func (s *SettlementScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("settlement scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.logger))))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.WithError(err).Error("Scheduled settlement run failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid settlement schedule %q: %w", s.cfg.Schedule, err)
	}

	c.Start()
	s.cron, s.ctx, s.cancel = c, ctx, cancel
	s.logger.WithField("schedule", s.cfg.Schedule).Info("Settlement scheduler started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run, cancelling it if
// it outlives the grace period.
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
	case <-time.After(s.cfg.StopGrace):
		s.logger.Warn("Settlement run did not finish in time, cancelling")
		cancel()
		<-done.Done()
	}
	cancel()
	s.logger.Info("Settlement scheduler stopped")
}

// RunOnce performs one settlement pass over the trailing window. A second
// call while a run is in flight returns ErrRunInProgress.
func (s *SettlementScheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	now := s.cfg.Now()
	report := &RunReport{
		StartedAt:   now,
		WindowStart: now.Add(-s.cfg.Window),
		WindowEnd:   now,
	}
	timer := time.Now()
	defer func() {
		metrics.SettlementRunDuration.Observe(time.Since(timer).Seconds())
	}()

	log := s.logger.WithFields(logging.Fields{
		"window_start": report.WindowStart,
		"window_end":   report.WindowEnd,
	})
	log.Info("Running settlement")

	sessions, err := s.cfg.Sessions.ListSessions(ctx, database.SessionFilter{
		Status: models.SessionCompleted,
		From:   report.WindowStart,
		To:     report.WindowEnd,
	})
	if err != nil {
		s.automationError(ctx, report, "", err)
		report.FinishedAt = s.cfg.Now()
		metrics.SettlementRunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("list completed sessions: %w", err)
	}

	byMentor := make(map[string][]models.Session)
	for _, sess := range sessions {
		byMentor[sess.MentorID] = append(byMentor[sess.MentorID], sess)
	}
	mentorIDs := make([]string, 0, len(byMentor))
	for id := range byMentor {
		mentorIDs = append(mentorIDs, id)
	}
	sort.Strings(mentorIDs)
	report.Mentors = len(mentorIDs)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, mentorID := range mentorIDs {
		mentorID, mentorSessions := mentorID, byMentor[mentorID]
		g.Go(func() error {
			s.settleMentor(ctx, report, mentorID, mentorSessions)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = s.cfg.Now()
	outcome := "success"
	if len(report.Errors) > 0 {
		outcome = "partial"
	}
	metrics.SettlementRunsTotal.WithLabelValues(outcome).Inc()
	log.WithFields(logging.Fields{
		"mentors":      report.Mentors,
		"generated":    report.Generated,
		"paid":         report.Paid,
		"failed":       report.Failed,
		"under_review": report.UnderReview,
		"errors":       len(report.Errors),
	}).Info("Settlement run finished")
	return report, nil
}

func (s *SettlementScheduler) settleMentor(ctx context.Context, report *RunReport, mentorID string, sessions []models.Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("mentor_id", mentorID).WithField("stack", string(debug.Stack())).Error("Settlement panicked")
			s.automationError(ctx, report, mentorID, fmt.Errorf("panic: %v", r))
		}
	}()

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}

	payout, added, err := s.cfg.Ledger.GenerateReceipt(ctx, services.ReceiptRequest{
		MentorID:   mentorID,
		MentorName: sessions[0].MentorName,
		SessionIDs: ids,
		Notes:      automatedNote,
	}, sessions)
	if errors.Is(err, services.ErrNoEligibleSessions) {
		return
	}
	if err != nil {
		s.automationError(ctx, report, mentorID, err)
		return
	}

	if added == 0 {
		// Every window session is already in the open payout. A Pending one
		// is still due for transfer; an UnderReview one was reported before.
		if payout.Status != models.PayoutPending {
			s.logger.WithFields(logging.Fields{
				"mentor_id": mentorID,
				"payout_id": payout.ID,
				"status":    payout.Status,
			}).Debug("Open payout unchanged, nothing to settle")
			return
		}
	} else {
		report.record(func(r *RunReport) { r.Generated++ })

		details := services.PayoutDetails(payout)
		details["sessionCount"] = len(payout.Sessions)
		s.cfg.Audit.Record(ctx, services.AuditEntry{
			Title:       services.AuditPayoutGenerated,
			Description: fmt.Sprintf("Generated automated payout for %s", payout.MentorName),
			Details:     details,
		})
	}

	_, outcome, err := s.cfg.Settlement.Settle(ctx, payout)
	if err != nil {
		s.automationError(ctx, report, mentorID, err)
		return
	}
	report.record(func(r *RunReport) {
		switch outcome {
		case services.OutcomePaid:
			r.Paid++
		case services.OutcomeFailed:
			r.Failed++
		case services.OutcomeUnderReview:
			r.UnderReview++
		}
	})
}

func (s *SettlementScheduler) automationError(ctx context.Context, report *RunReport, mentorID string, err error) {
	report.record(func(r *RunReport) { r.Errors = append(r.Errors, err.Error()) })

	details := map[string]interface{}{"error": err.Error()}
	description := "Failed to process automated payouts"
	if mentorID != "" {
		details["mentorId"] = mentorID
		description = fmt.Sprintf("Failed to process automated payout for mentor %s", mentorID)
	}
	s.logger.WithError(err).WithField("mentor_id", mentorID).Error("Settlement automation error")
	s.cfg.Audit.Record(context.WithoutCancel(ctx), services.AuditEntry{
		Title:       services.AuditAutomationError,
		Description: description,
		Details:     details,
	})
}
