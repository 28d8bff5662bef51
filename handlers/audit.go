package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hackathon-payout-system/middleware"
	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
	"hackathon-payout-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

type AuditHandler struct {
	Audits *services.AuditService
	Events storage.EventStore
}

// Trail handles GET /s/hackathons/:id/audit
// Query params: action, actor, since, until (RFC3339), limit, offset
func (h *AuditHandler) Trail(c *fiber.Ctx) error {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	entries, err := h.Audits.Trail(c.Context(), filter)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch audit trail"})
	}
	return c.JSON(fiber.Map{
		"hackathon_id": filter.HackathonID,
		"count":        len(entries),
		"entries":      entries,
	})
}

// Summary handles GET /s/hackathons/:id/audit/summary
func (h *AuditHandler) Summary(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	summary, err := h.Audits.Summary(c.Context(), hackathonID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to summarize audit trail"})
	}
	return c.JSON(fiber.Map{
		"hackathon_id": hackathonID,
		"actions":      summary,
	})
}

// Export handles POST /s/admin/hackathons/:id/audit/export — snapshots the full
// audit trail to R2 as JSON and returns the public URL. Admin only.
func (h *AuditHandler) Export(c *fiber.Ctx) error {
	hackathonID := c.Params("id")
	if !middleware.HasRole(c, "admin") {
		return c.Status(403).JSON(fiber.Map{"error": "admin role required"})
	}
	if !utils.R2Ready() {
		return c.Status(503).JSON(fiber.Map{"error": "audit export storage not configured"})
	}

	hackathon, err := h.Events.GetHackathon(c.Context(), hackathonID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "hackathon not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch hackathon"})
	}

	entries, err := h.Audits.Trail(c.Context(), storage.AuditFilter{HackathonID: hackathonID})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch audit trail"})
	}

	snapshot := fiber.Map{
		"hackathon_id": hackathonID,
		"name":         hackathon.Name,
		"phase":        hackathon.Phase,
		"exported_at":  time.Now().UTC(),
		"entries":      entries,
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to encode audit snapshot"})
	}

	key := fmt.Sprintf("audits/%s-%s.json", slug.Make(hackathon.Name), hackathonID)
	url, err := utils.UploadBytesToR2(c.Context(), payload, key, "application/json")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to upload audit export"})
	}

	return c.JSON(fiber.Map{
		"message": "audit trail exported",
		"url":     url,
		"entries": len(entries),
	})
}

func auditFilterFromQuery(c *fiber.Ctx) (storage.AuditFilter, error) {
	filter := storage.AuditFilter{
		HackathonID: c.Params("id"),
		Action:      models.AuditAction(c.Query("action")),
		Actor:       models.AuditActor(c.Query("actor")),
	}

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since timestamp, want RFC3339")
		}
		filter.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid until timestamp, want RFC3339")
		}
		filter.Until = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

func SetupAuditRoutes(app *fiber.App, audits *services.AuditService, events storage.EventStore) {
	h := &AuditHandler{Audits: audits, Events: events}

	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Get("/hackathons/:id/audit", h.Trail)
	secured.Get("/hackathons/:id/audit/summary", h.Summary)

	admin := secured.Group("/admin")
	admin.Post("/hackathons/:id/audit/export", h.Export)
}
