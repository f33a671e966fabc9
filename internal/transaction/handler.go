package transaction

import (
	"unicode/utf8"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey overrides the body's idempotency_key when present.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// Handler exposes the Orchestrator over HTTP.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler returns a Handler for o.
func NewHandler(o *Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

// Register mounts the transaction routes on router.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/v1/transactions")
	g.Post("/debit", h.Debit)
	g.Post("/credit", h.Credit)
	g.Post("/transfer", h.Transfer)
	g.Get("/idempotency/:key", h.GetByIdempotencyKey)
	g.Get("/:id", h.Get)
}

func (h *Handler) Debit(c *fiber.Ctx) error {
	var in DebitInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	if err := overrideKey(c, &in.IdempotencyKey); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return respond(c)(h.orchestrator.Debit(c.UserContext(), in))
}

func (h *Handler) Credit(c *fiber.Ctx) error {
	var in CreditInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	if err := overrideKey(c, &in.IdempotencyKey); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return respond(c)(h.orchestrator.Credit(c.UserContext(), in))
}

func (h *Handler) Transfer(c *fiber.Ctx) error {
	var in TransferInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	if err := overrideKey(c, &in.IdempotencyKey); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return respond(c)(h.orchestrator.Transfer(c.UserContext(), in))
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.WriteDomainError(c, apperr.Validation("id", "transaction id must be a UUID"))
	}

	tx, err := h.orchestrator.Get(c.UserContext(), id)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, tx)
}

func (h *Handler) GetByIdempotencyKey(c *fiber.Ctx) error {
	tx, err := h.orchestrator.GetByIdempotencyKey(c.UserContext(), c.Params("key"))
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, tx)
}

// respond renders a saga outcome. Failures carry only the error body; the
// record stays readable through the GET routes.
func respond(c *fiber.Ctx) func(*Transaction, error) error {
	return func(tx *Transaction, err error) error {
		if err != nil {
			if tx != nil {
				c.Set("X-Transaction-Id", tx.ID.String())
			}

			return httpx.WriteDomainError(c, err)
		}

		return httpx.Respond(c, fiber.StatusCreated, tx)
	}
}

// overrideKey replaces key with the Idempotency-Key header, held to the same
// length limit as the body field.
func overrideKey(c *fiber.Ctx, key *string) error {
	header := c.Get(HeaderIdempotencyKey)
	if header == "" {
		return nil
	}

	if utf8.RuneCountInString(header) > maxIdempotencyKeyLength {
		return apperr.Validation("idempotency_key", "idempotency_key must be at most 128 characters")
	}

	*key = header

	return nil
}
