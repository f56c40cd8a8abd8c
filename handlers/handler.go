package handlers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/jobs"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/middleware"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/services"
	"github.com/anjiri1684/mentor_payouts/websocket"
)

var validate = validator.New()

// Store is what the HTTP layer reads and writes directly. Payout writes go
// through the ledger.
type Store interface {
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter database.SessionFilter) ([]models.Session, error)
	FindPayoutBySession(ctx context.Context, sessionID string) (*models.Payout, error)
	SaveMentor(ctx context.Context, m *models.Mentor) error
	GetMentor(ctx context.Context, id string) (*models.Mentor, error)
	ListMentors(ctx context.Context) ([]models.Mentor, error)
	ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AutomationRunner triggers a settlement run on demand.
type AutomationRunner interface {
	RunOnce(ctx context.Context) (*jobs.RunReport, error)
}

type Handler struct {
	Store      Store
	Ledger     *services.PayoutLedger
	Settlement *services.SettlementService
	Audit      *services.AuditService
	Documents  *services.ReceiptDocumentService
	Automation AutomationRunner
	Hub        *websocket.Hub
	JWTSecret  string
	Logger     logging.Logger
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var (
		transitionErr  *services.InvalidTransitionError
		calculationErr *services.CalculationError
	)
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrPayoutNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, database.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.As(err, &transitionErr),
		errors.Is(err, services.ErrLedgerConflict),
		errors.Is(err, services.ErrNotSettleable),
		errors.Is(err, services.ErrSessionClaimed),
		errors.Is(err, jobs.ErrRunInProgress),
		errors.Is(err, database.ErrDuplicate):
		status = fiber.StatusConflict
	case errors.As(err, &calculationErr),
		errors.Is(err, services.ErrNoEligibleSessions),
		errors.Is(err, services.ErrSessionNotCompleted):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPublishingDisabled):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
		return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// actor names the authenticated admin for audit entries.
func actor(c *fiber.Ctx) string {
	claims := middleware.Claims(c)
	if email, ok := claims["email"].(string); ok && email != "" {
		return email
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id
	}
	return models.ActorSystem
}
