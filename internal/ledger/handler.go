package ledger

import (
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes the Ledger Recorder over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the ledger routes on router.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/v1/ledger")
	g.Post("/record", h.Record)
	g.Get("/last", h.Last)
	g.Get("/references/:ref", h.ListByReference)
}

func (h *Handler) Record(c *fiber.Ctx) error {
	var in RecordInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	res, err := h.svc.Record(c.UserContext(), in)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	status := fiber.StatusCreated
	if res.Status == StatusAlreadyRecorded {
		status = fiber.StatusOK
	}

	return httpx.Respond(c, status, res)
}

// Last answers 204 when the ledger is empty.
func (h *Handler) Last(c *fiber.Ctx) error {
	e, err := h.svc.GetLast(c.UserContext())
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	if e == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return httpx.Respond(c, fiber.StatusOK, e)
}

func (h *Handler) ListByReference(c *fiber.Ctx) error {
	entries, err := h.svc.ListByReference(c.UserContext(), c.Params("ref"))
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, fiber.Map{"reference_id": c.Params("ref"), "entries": entries})
}
