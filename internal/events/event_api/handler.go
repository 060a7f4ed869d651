package event_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/events"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler serves the organizer routes. Every mutation checks that the caller
// organizes the event it touches.
type Handler struct {
	Service *events.EventService
	Logger  *logger.Logger
}

func NewHandler(svc *events.EventService, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/events", h.CreateEvent)
		r.Get("/events", h.ListEvents)
		r.Route("/events/{eventId}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Post("/publish", h.Publish)
			r.Post("/cancel", h.Cancel)
			r.Post("/complete", h.Complete)
			r.Get("/tiers", h.ListTiers)
			r.Post("/tiers", h.AddTier)
		})
		r.Route("/tiers/{tierId}", func(r chi.Router) {
			r.Put("/capacity", h.ResizeTier)
			r.Put("/active", h.SetTierActive)
			r.Put("/presale-code", h.SetPresaleCode)
		})
	})
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in events.CreateEventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return
	}
	userID := auth.UserID(r.Context())
	in.OrganizerID = userID

	event, err := h.Service.CreateEvent(r.Context(), in)
	if err != nil {
		utils.WriteError(w, "Failed to create event", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", event))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	all, err := h.Service.ListEvents(r.Context())
	if err != nil {
		utils.WriteError(w, "Failed to list events", err)
		return
	}
	owned := make([]models.Event, 0, len(all))
	for _, e := range all {
		if e.OrganizerID == userID {
			owned = append(owned, e)
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Events", owned))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, ok := h.ownedEvent(w, r, chi.URLParam(r, "eventId"))
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event", event))
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "published", h.Service.Publish)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancelled", h.Service.Cancel)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "completed", h.Service.Complete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, verb string, apply func(ctx context.Context, id string) error) {
	eventID := chi.URLParam(r, "eventId")
	if _, ok := h.ownedEvent(w, r, eventID); !ok {
		return
	}
	if err := apply(r.Context(), eventID); err != nil {
		utils.WriteError(w, "Event could not be "+verb, err)
		return
	}
	event, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, "Failed to load event", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event "+verb, event))
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if _, ok := h.ownedEvent(w, r, eventID); !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tiers", h.Service.ListTiers(eventID)))
}

func (h *Handler) AddTier(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if _, ok := h.ownedEvent(w, r, eventID); !ok {
		return
	}
	var in events.TierInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return
	}
	tier, err := h.Service.AddTier(r.Context(), eventID, in)
	if err != nil {
		utils.WriteError(w, "Failed to add tier", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Tier added", tier))
}

func (h *Handler) ResizeTier(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TotalQuantity int `json:"total_quantity"`
	}
	h.reconfigure(w, r, &body, func(ctx context.Context, tierID string) (models.TicketTier, error) {
		return h.Service.ResizeTier(ctx, tierID, body.TotalQuantity)
	})
}

func (h *Handler) SetTierActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	h.reconfigure(w, r, &body, func(ctx context.Context, tierID string) (models.TicketTier, error) {
		return h.Service.SetTierActive(ctx, tierID, body.Active)
	})
}

func (h *Handler) SetPresaleCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	h.reconfigure(w, r, &body, func(ctx context.Context, tierID string) (models.TicketTier, error) {
		return h.Service.SetPresaleCode(ctx, tierID, body.Code)
	})
}

func (h *Handler) reconfigure(w http.ResponseWriter, r *http.Request, body interface{},
	apply func(ctx context.Context, tierID string) (models.TicketTier, error)) {
	tierID := chi.URLParam(r, "tierId")
	tier, err := h.Service.GetTier(r.Context(), tierID)
	if err != nil {
		utils.WriteError(w, "Tier not found", err)
		return
	}
	if _, ok := h.ownedEvent(w, r, tier.EventID); !ok {
		return
	}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return
	}
	updated, err := apply(r.Context(), tierID)
	if err != nil {
		utils.WriteError(w, "Failed to update tier", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tier updated", updated))
}

// ownedEvent loads the event and answers 404 unless the caller organizes it,
// so other organizers cannot discover which ids exist.
func (h *Handler) ownedEvent(w http.ResponseWriter, r *http.Request, eventID string) (*models.Event, bool) {
	userID := auth.UserID(r.Context())
	event, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, "Event not found", err)
		return nil, false
	}
	if event.OrganizerID != userID {
		h.Logger.LogSecurity("ORGANIZER_MISMATCH", fmt.Sprintf("user %s touched event %s", userID, eventID))
		utils.WriteError(w, "Event not found", models.ErrNotFound)
		return nil, false
	}
	return event, true
}
