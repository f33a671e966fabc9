package fraud

import (
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes the Fraud Scorer over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the fraud routes on router.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/v1/fraud")
	g.Post("/check", h.Check)
	g.Get("/alerts/:id", h.GetAlert)
	g.Post("/alerts/:id/feedback", h.AttachFeedback)
}

func (h *Handler) Check(c *fiber.Ctx) error {
	var in CheckInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	alert, err := h.svc.Check(c.UserContext(), in)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusCreated, alert)
}

func (h *Handler) GetAlert(c *fiber.Ctx) error {
	id, err := alertID(c)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	alert, err := h.svc.GetAlert(c.UserContext(), id)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, alert)
}

func (h *Handler) AttachFeedback(c *fiber.Ctx) error {
	id, err := alertID(c)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	var in FeedbackInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	alert, err := h.svc.AttachFeedback(c.UserContext(), id, in)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, alert)
}

func alertID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "alert id must be a UUID")
	}

	return id, nil
}
