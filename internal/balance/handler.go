package balance

import (
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustBalanceRequest is the body of POST /v1/accounts/:id/adjust-balance.
type AdjustBalanceRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// Handler exposes the Balance Authority over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the account routes on router.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/v1/accounts")
	g.Post("/", h.OpenAccount)
	g.Get("/:id", h.GetAccount)
	g.Post("/:id/adjust-balance", h.AdjustBalance)
}

func (h *Handler) OpenAccount(c *fiber.Ctx) error {
	var in OpenAccountInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	account, err := h.svc.OpenAccount(c.UserContext(), in)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusCreated, account)
}

func (h *Handler) GetAccount(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	account, err := h.svc.GetAccount(c.UserContext(), id)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, account)
}

func (h *Handler) AdjustBalance(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	var in AdjustBalanceRequest
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	account, err := h.svc.AdjustBalance(c.UserContext(), id, in.Delta)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, account)
}

func accountID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "id must be a valid UUID")
	}

	return id, nil
}
