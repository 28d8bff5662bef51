package handlers

import (
	"errors"

	"hackathon-payout-system/middleware"
	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"

	"github.com/gofiber/fiber/v2"
)

// actorFromCtx maps the gateway roles onto the audit actor. Manual lifecycle
// and distribution calls require organizer or admin.
func actorFromCtx(c *fiber.Ctx) (models.AuditActor, string, bool) {
	userID, _ := c.Locals("user_id").(string)
	switch {
	case middleware.HasRole(c, "admin"):
		return models.ActorAdmin, userID, true
	case middleware.HasRole(c, "organizer"):
		return models.ActorOrganizer, userID, true
	}
	return "", "", false
}

type LifecycleHandler struct {
	Service *services.LifecycleService
}

// ManualTransition handles POST /s/hackathons/:id/transition
func (h *LifecycleHandler) ManualTransition(c *fiber.Ctx) error {
	type Req struct {
		TargetPhase string `json:"target_phase" validate:"required"`
		Reason      string `json:"reason"`
	}
	hackathonID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.TargetPhase == "" {
		return c.Status(400).JSON(fiber.Map{"error": "target_phase is required"})
	}

	actor, actorID, ok := actorFromCtx(c)
	if !ok {
		return c.Status(403).JSON(fiber.Map{"error": "organizer or admin role required"})
	}

	err := h.Service.ManualTransition(c.Context(), hackathonID, models.HackathonPhase(req.TargetPhase), actor, actorID, req.Reason)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "hackathon not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrStaleTransition):
		return c.Status(409).JSON(fiber.Map{"error": "phase changed concurrently, retry"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "transition failed"})
	}

	return c.JSON(fiber.Map{
		"message":      "transition applied",
		"hackathon_id": hackathonID,
		"phase":        req.TargetPhase,
	})
}

func SetupLifecycleRoutes(app *fiber.App, lifecycle *services.LifecycleService) {
	h := &LifecycleHandler{Service: lifecycle}

	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Post("/hackathons/:id/transition", h.ManualTransition)
}
