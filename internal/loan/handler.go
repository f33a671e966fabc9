package loan

import (
	"strconv"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ProcessRequest optionally backdates or forwards a manual batch run.
type ProcessRequest struct {
	AsOf Date `json:"as_of"`
}

// Handler exposes loans over HTTP.
type Handler struct {
	svc   *Service
	today func() Date
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, today: func() Date { return DateOf(svc.now()) }}
}

// Register mounts the loan routes on router.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/v1/loans")
	g.Post("/", h.CreateLoan)
	g.Post("/process-emi", h.ProcessEMI)
	g.Get("/overdue-emis", h.ListOverdue)
	g.Get("/:id", h.GetLoan)
}

func (h *Handler) CreateLoan(c *fiber.Ctx) error {
	var in CreateLoanInput
	if err := httpx.ParseBodyAndValidate(c, &in); err != nil {
		return httpx.WriteDomainError(c, err)
	}

	loan, err := h.svc.CreateLoan(c.UserContext(), in)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusCreated, loan)
}

func (h *Handler) GetLoan(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.WriteDomainError(c, apperr.Validation("id", "loan id must be a UUID"))
	}

	loan, err := h.svc.GetLoan(c.UserContext(), id)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, loan)
}

// ProcessEMI runs the batch now. An empty body processes today.
func (h *Handler) ProcessEMI(c *fiber.Ctx) error {
	var req ProcessRequest

	if len(c.Body()) > 0 {
		if err := httpx.ParseBodyAndValidate(c, &req); err != nil {
			return httpx.WriteDomainError(c, err)
		}
	}

	if req.AsOf.IsZero() {
		req.AsOf = h.today()
	}

	result, err := h.svc.ProcessDueEMIs(c.UserContext(), req.AsOf)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, result)
}

func (h *Handler) ListOverdue(c *fiber.Ctx) error {
	minDays := 1

	if raw := c.Query("min_overdue_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return httpx.WriteDomainError(c, apperr.Validation("min_overdue_days", "min_overdue_days must be an integer"))
		}

		minDays = n
	}

	overdues, err := h.svc.ListOverdue(c.UserContext(), h.today(), minDays)
	if err != nil {
		return httpx.WriteDomainError(c, err)
	}

	return httpx.Respond(c, fiber.StatusOK, fiber.Map{"count": len(overdues), "overdues": overdues})
}
