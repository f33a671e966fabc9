package httpx

import (
	"context"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/circuitbreaker"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Health serves liveness and readiness probes.
type Health struct {
	checks   map[string]HealthCheck
	breakers *circuitbreaker.Manager
	timeout  time.Duration
}

// NewHealth builds a Health. breakers may be nil.
func NewHealth(breakers *circuitbreaker.Manager) *Health {
	return &Health{
		checks:   map[string]HealthCheck{},
		breakers: breakers,
		timeout:  2 * time.Second,
	}
}

// AddCheck registers a readiness check under name.
func (h *Health) AddCheck(name string, check HealthCheck) *Health {
	h.checks[name] = check

	return h
}

// Register mounts /health/live and /health/ready on router.
func (h *Health) Register(router fiber.Router) {
	router.Get("/health/live", h.Live)
	router.Get("/health/ready", h.Ready)
}

// Live always reports up while the process serves requests.
func (h *Health) Live(c *fiber.Ctx) error {
	return Respond(c, fiber.StatusOK, fiber.Map{"status": "up"})
}

// Ready runs every check and reports 503 when any fails or a breaker is open.
func (h *Health) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	status := fiber.StatusOK
	checks := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "down: " + err.Error()
			status = fiber.StatusServiceUnavailable

			continue
		}

		checks[name] = "up"
	}

	body := fiber.Map{"checks": checks}

	if h.breakers != nil {
		snapshot := h.breakers.Snapshot()
		body["circuit_breakers"] = snapshot

		for _, state := range snapshot {
			if state == circuitbreaker.StateOpen {
				status = fiber.StatusServiceUnavailable
			}
		}
	}

	body["status"] = "up"
	if status != fiber.StatusOK {
		body["status"] = "down"
	}

	return Respond(c, status, body)
}
