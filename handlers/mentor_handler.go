package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/services"
)

type MentorRequest struct {
	ID              string          `json:"id"`
	FirstName       string          `json:"first_name" validate:"required"`
	LastName        string          `json:"last_name"`
	Email           string          `json:"email" validate:"required,email"`
	Country         string          `json:"country"`
	BaseRate        decimal.Decimal `json:"base_rate"`
	PayPalEmail     *string         `json:"paypal_email" validate:"omitempty,email"`
	StripeAccountID *string         `json:"stripe_account_id"`
	BankName        *string         `json:"bank_name"`
	AccountNumber   *string         `json:"account_number"`
	IFSCCode        *string         `json:"ifsc_code"`
}

func (h *Handler) ListMentors(c *fiber.Ctx) error {
	mentors, err := h.Store.ListMentors(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(mentors)
}

func (h *Handler) CreateMentor(c *fiber.Ctx) error {
	var req MentorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.BaseRate.IsNegative() {
		return badRequest(c, "base_rate must not be negative")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = services.DefaultCountry
	}

	mentor := models.Mentor{
		ID:              id,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           strings.ToLower(req.Email),
		Country:         country,
		BaseRate:        req.BaseRate,
		IsActive:        true,
		PayPalEmail:     req.PayPalEmail,
		StripeAccountID: req.StripeAccountID,
		BankName:        req.BankName,
		AccountNumber:   req.AccountNumber,
		IFSCCode:        req.IFSCCode,
	}
	if err := h.Store.SaveMentor(c.UserContext(), &mentor); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(mentor)
}
