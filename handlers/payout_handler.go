package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/services"
)

type PreviewRequest struct {
	MentorID   string   `json:"mentor_id" validate:"required"`
	SessionIDs []string `json:"session_ids" validate:"required,min=1"`
}

type ReceiptRequest struct {
	MentorID   string   `json:"mentor_id" validate:"required"`
	MentorName string   `json:"mentor_name"`
	SessionIDs []string `json:"session_ids" validate:"required,min=1"`
	Notes      string   `json:"notes" validate:"max=1000"`
}

type StatusRequest struct {
	Status            models.PayoutStatus `json:"status" validate:"required,oneof=Pending UnderReview Paid Failed"`
	TransferReference string              `json:"transfer_reference"`
	Note              string              `json:"note" validate:"max=1000"`
}

func (h *Handler) ListPayouts(c *fiber.Ctx) error {
	filter := database.PayoutFilter{MentorID: c.Query("mentorId")}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.PayoutStatus(strings.TrimSpace(s)))
		}
	}
	payouts, err := h.Ledger.List(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(payouts)
}

func (h *Handler) GetPayout(c *fiber.Ctx) error {
	payout, err := h.Ledger.Get(c.UserContext(), c.Params("payoutId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(payout)
}

func (h *Handler) PreviewPayout(c *fiber.Ctx) error {
	var req PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	calc, err := h.Ledger.Preview(c.UserContext(), req.MentorID, req.SessionIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(calc)
}

// CreateReceipt generates a payout over the chosen sessions and emails the
// receipt to the mentor.
func (h *Handler) CreateReceipt(c *fiber.Ctx) error {
	var req ReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.UserContext()
	payout, added, err := h.Ledger.GenerateReceipt(ctx, services.ReceiptRequest{
		MentorID:   req.MentorID,
		MentorName: req.MentorName,
		SessionIDs: req.SessionIDs,
		Notes:      req.Notes,
	}, nil)
	if err != nil {
		return h.fail(c, err)
	}
	if added == 0 {
		return c.JSON(payout)
	}

	h.Audit.Record(ctx, services.AuditEntry{
		Actor:       actor(c),
		Title:       services.AuditPayoutGenerated,
		Description: fmt.Sprintf("Generated payout receipt for %s", payout.MentorName),
		Details:     services.PayoutDetails(payout),
	})
	h.Settlement.SendReceiptEmail(ctx, payout)

	return c.Status(fiber.StatusCreated).JSON(payout)
}

func (h *Handler) UpdatePayoutStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	// Paid is only recorded by hand for a transfer made outside the engine.
	if req.Status == models.PayoutPaid && strings.TrimSpace(req.TransferReference) == "" {
		return badRequest(c, "transfer_reference is required to mark a payout Paid")
	}

	var opts []services.StatusOption
	if req.TransferReference != "" {
		opts = append(opts, services.WithTransferReference(req.TransferReference))
	}
	if req.Note != "" {
		opts = append(opts, services.WithStatusNote(req.Note))
	}

	ctx := c.UserContext()
	payout, err := h.Ledger.UpdateStatus(ctx, c.Params("payoutId"), req.Status, opts...)
	if err != nil {
		return h.fail(c, err)
	}

	h.Audit.Record(ctx, services.AuditEntry{
		Actor:       actor(c),
		Title:       services.AuditPayoutStatusChanged,
		Description: fmt.Sprintf("Payout for %s marked %s", payout.MentorName, payout.Status),
		Details:     services.PayoutDetails(payout),
	})
	return c.JSON(payout)
}

// SettlePayout transfers an open payout now, typically after an admin has
// reviewed an UnderReview payout.
func (h *Handler) SettlePayout(c *fiber.Ctx) error {
	payout, outcome, err := h.Settlement.Disburse(c.UserContext(), c.Params("payoutId"), actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"outcome": outcome, "payout": payout})
}

func (h *Handler) GetReceiptHTML(c *fiber.Ctx) error {
	ctx := c.UserContext()
	payout, err := h.Ledger.Get(ctx, c.Params("payoutId"))
	if err != nil {
		return h.fail(c, err)
	}
	html, err := h.Documents.RenderHTML(ctx, payout)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(html)
}

func (h *Handler) GetReceiptPDF(c *fiber.Ctx) error {
	ctx := c.UserContext()
	payout, err := h.Ledger.Get(ctx, c.Params("payoutId"))
	if err != nil {
		return h.fail(c, err)
	}
	pdf, err := h.Documents.RenderPDF(ctx, payout)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.pdf"`, payout.ReceiptNumber))
	return c.Send(pdf)
}

func (h *Handler) PublishReceipt(c *fiber.Ctx) error {
	ctx := c.UserContext()
	payout, err := h.Ledger.Get(ctx, c.Params("payoutId"))
	if err != nil {
		return h.fail(c, err)
	}
	url, err := h.Documents.Publish(ctx, payout, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}
