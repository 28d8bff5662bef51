package handlers

import (
	"errors"

	"hackathon-payout-system/middleware"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
	"hackathon-payout-system/workers"

	"github.com/gofiber/fiber/v2"
)

type DistributionHandler struct {
	Service *services.DistributionService
	Monitor *workers.TransactionMonitor
}

// Schedule handles POST /s/hackathons/:id/distribution/schedule
func (h *DistributionHandler) Schedule(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	if _, _, ok := actorFromCtx(c); !ok {
		return c.Status(403).JSON(fiber.Map{"error": "organizer or admin role required"})
	}

	job, err := h.Service.Schedule(c.Context(), hackathonID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "hackathon not found"})
	case errors.Is(err, services.ErrNotCompleted):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "failed to schedule distribution"})
	}
	return c.Status(202).JSON(job)
}

// Cancel handles POST /s/hackathons/:id/distribution/cancel
func (h *DistributionHandler) Cancel(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	actor, actorID, ok := actorFromCtx(c)
	if !ok {
		return c.Status(403).JSON(fiber.Map{"error": "organizer or admin role required"})
	}

	cancelled, err := h.Service.Cancel(c.Context(), hackathonID, actor, actorID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to cancel distribution"})
	}
	return c.JSON(fiber.Map{"cancelled": cancelled})
}

// Run handles POST /s/hackathons/:id/distribution/run — runs the payout
// immediately, re-triggering a failed distribution if needed. Admin only.
func (h *DistributionHandler) Run(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	actor, actorID, ok := actorFromCtx(c)
	if !ok || !middleware.HasRole(c, "admin") {
		return c.Status(403).JSON(fiber.Map{"error": "admin role required"})
	}

	job, err := h.Service.ManualDistribute(c.Context(), hackathonID, actor, actorID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "hackathon not found"})
	case errors.Is(err, services.ErrNotCompleted):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "distribution run failed"})
	}
	return c.JSON(job)
}

// JobStatus handles GET /s/hackathons/:id/distribution
func (h *DistributionHandler) JobStatus(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	job, err := h.Service.JobStatus(c.Context(), hackathonID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch distribution job"})
	}
	if job == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no distribution job for hackathon"})
	}
	return c.JSON(job)
}

// Reconcile handles POST /s/admin/distribution/reconcile
func (h *DistributionHandler) Reconcile(c *fiber.Ctx) error {
	if !middleware.HasRole(c, "admin") {
		return c.Status(403).JSON(fiber.Map{"error": "admin role required"})
	}
	scheduled, err := h.Service.ScanForCompletedEvents(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "reconcile sweep failed"})
	}
	return c.JSON(fiber.Map{"scheduled": scheduled})
}

// Stats handles GET /s/monitoring/transactions
func (h *DistributionHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.Monitor.Stats(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute transaction stats"})
	}
	return c.JSON(stats)
}

func SetupDistributionRoutes(app *fiber.App, distribution *services.DistributionService, monitor *workers.TransactionMonitor) {
	h := &DistributionHandler{Service: distribution, Monitor: monitor}

	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Post("/hackathons/:id/distribution/schedule", h.Schedule)
	secured.Post("/hackathons/:id/distribution/cancel", h.Cancel)
	secured.Post("/hackathons/:id/distribution/run", h.Run)
	secured.Get("/hackathons/:id/distribution", h.JobStatus)
	secured.Get("/monitoring/transactions", h.Stats)

	admin := secured.Group("/admin")
	admin.Post("/distribution/reconcile", h.Reconcile)
}
