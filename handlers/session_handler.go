package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/services"
)

type SessionRequest struct {
	MentorID    string               `json:"mentor_id" validate:"required"`
	MentorName  string               `json:"mentor_name"`
	Date        time.Time            `json:"date" validate:"required"`
	Duration    int                  `json:"duration" validate:"gte=0"`
	RatePerHour decimal.Decimal      `json:"rate_per_hour"`
	Status      models.SessionStatus `json:"status" validate:"omitempty,oneof=Scheduled Completed Cancelled"`
	Amount      *decimal.Decimal     `json:"amount"`
}

type SessionResponse struct {
	Session models.Session `json:"session"`
	Payout  *models.Payout `json:"payout,omitempty"`
}

func (h *Handler) ListSessions(c *fiber.Ctx) error {
	filter := database.SessionFilter{
		MentorID: c.Query("mentorId"),
		Status:   models.SessionStatus(c.Query("status")),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return badRequest(c, "from must be RFC3339")
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return badRequest(c, "to must be RFC3339")
		}
		filter.To = t
	}

	sessions, err := h.Store.ListSessions(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sessions)
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var req SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	session := models.Session{ID: uuid.NewString()}
	if msg := h.applySessionRequest(c, &session, req); msg != "" {
		return badRequest(c, msg)
	}
	return h.saveSession(c, &session, fiber.StatusCreated)
}

// UpdateSession edits a session. A session already held by a payout is
// frozen so that stored payout totals stay consistent with their sessions.
func (h *Handler) UpdateSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	session, err := h.Store.GetSession(ctx, c.Params("sessionId"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return h.fail(c, services.ErrSessionNotFound)
		}
		return h.fail(c, err)
	}

	var req SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	storedMentor := session.MentorID
	if msg := h.applySessionRequest(c, session, req); msg != "" {
		return badRequest(c, msg)
	}

	holder, err := h.Ledger.EditSession(ctx, storedMentor, session.ID, func(ctx context.Context) error {
		return h.Store.SaveSession(ctx, session)
	})
	if errors.Is(err, services.ErrSessionClaimed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Session is already part of a payout",
			"payoutId": holder.ID,
		})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return h.mergeSaved(c, session, fiber.StatusOK)
}

func (h *Handler) applySessionRequest(c *fiber.Ctx, s *models.Session, req SessionRequest) string {
	if err := validate.Struct(req); err != nil {
		return err.Error()
	}
	if req.RatePerHour.IsNegative() || (req.Amount != nil && req.Amount.IsNegative()) {
		return "amounts must not be negative"
	}
	if req.Status == "" {
		req.Status = models.SessionScheduled
	}
	if req.MentorName == "" {
		if mentor, err := h.Store.GetMentor(c.UserContext(), req.MentorID); err == nil {
			req.MentorName = mentor.FullName()
		}
	}
	if req.MentorName == "" {
		return "mentor_name is required for unknown mentors"
	}

	s.MentorID = req.MentorID
	s.MentorName = req.MentorName
	s.Date = req.Date
	s.Duration = req.Duration
	s.RatePerHour = req.RatePerHour
	s.Status = req.Status
	s.Amount = req.Amount
	return ""
}

// saveSession persists the session and, once it is completed, folds it into
// the mentor's open payout.
func (h *Handler) saveSession(c *fiber.Ctx, session *models.Session, status int) error {
	if err := h.Store.SaveSession(c.UserContext(), session); err != nil {
		return h.fail(c, err)
	}
	return h.mergeSaved(c, session, status)
}

func (h *Handler) mergeSaved(c *fiber.Ctx, session *models.Session, status int) error {
	ctx := c.UserContext()
	resp := SessionResponse{Session: *session}
	if session.IsCompleted() {
		payout, err := h.Ledger.MergeSession(ctx, *session)
		if err != nil {
			// the session itself is saved; the next settlement run picks it up
			h.Logger.WithError(err).WithFields(logging.Fields{
				"session_id": session.ID,
				"mentor_id":  session.MentorID,
			}).Error("Failed to merge completed session into payout")
			return c.Status(status).JSON(resp)
		}
		resp.Payout = payout
	}
	return c.Status(status).JSON(resp)
}
