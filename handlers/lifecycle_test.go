package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"

	"github.com/gofiber/fiber/v2"
)

func newLifecycleApp(store *storage.MemoryStore) *fiber.App {
	app := fiber.New()
	lifecycle := services.NewLifecycleService(store, services.NewAuditService(store), services.NewPhaseBus())
	SetupLifecycleRoutes(app, lifecycle)
	return app
}

func transitionRequest(hackathonID, targetPhase, userID, roles string) *http.Request {
	body, _ := json.Marshal(map[string]string{
		"target_phase": targetPhase,
		"reason":       "test transition",
	})
	req := httptest.NewRequest(http.MethodPost, "/s/hackathons/"+hackathonID+"/transition", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	return req
}

func TestManualTransitionEndpoint(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutHackathon(models.Hackathon{ID: "h1", Name: "Hack", Phase: models.PhaseDraft})
	app := newLifecycleApp(store)

	resp, err := app.Test(transitionRequest("h1", "registration_open", "org-1", "organizer"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	h, _ := store.GetHackathon(context.Background(), "h1")
	if h.Phase != models.PhaseRegistrationOpen {
		t.Fatalf("expected phase %s, got %s", models.PhaseRegistrationOpen, h.Phase)
	}
}

func TestManualTransitionEndpointRejectsMissingRole(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutHackathon(models.Hackathon{ID: "h1", Phase: models.PhaseDraft})
	app := newLifecycleApp(store)

	resp, err := app.Test(transitionRequest("h1", "registration_open", "user-1", "participant"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	h, _ := store.GetHackathon(context.Background(), "h1")
	if h.Phase != models.PhaseDraft {
		t.Fatalf("phase changed without authorization: %s", h.Phase)
	}
}

func TestManualTransitionEndpointRequiresIdentity(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutHackathon(models.Hackathon{ID: "h1", Phase: models.PhaseDraft})
	app := newLifecycleApp(store)

	resp, err := app.Test(transitionRequest("h1", "registration_open", "", ""))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestManualTransitionEndpointInvalidTarget(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutHackathon(models.Hackathon{ID: "h1", Phase: models.PhaseDraft})
	app := newLifecycleApp(store)

	resp, err := app.Test(transitionRequest("h1", "voting_open", "adm-1", "admin"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestManualTransitionEndpointNotFound(t *testing.T) {
	app := newLifecycleApp(storage.NewMemoryStore())

	resp, err := app.Test(transitionRequest("missing", "registration_open", "adm-1", "admin"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
