package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/order"
	"ms-inventory/internal/utils"

	"github.com/go-chi/chi/v5"
)

type WaitlistService interface {
	Join(ctx context.Context, eventID, tierID, buyerID string, qty int) (*models.WaitlistEntry, error)
	Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	Position(ctx context.Context, entryID string) (int, error)
	Leave(ctx context.Context, entryID, buyerID string) error
}

type Handler struct {
	OrderService *order.OrderService
	Waitlist     WaitlistService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, wl WaitlistService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Waitlist: wl, Logger: log}
}

// RegisterRoutes mounts the buyer-facing routes. Callers wrap r with the
// auth middleware; every handler here needs a user id.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tiers/{tierId}/availability", h.TierAvailability)
	r.Get("/tiers/{tierId}/quote", h.Quote)
	r.Get("/events/{eventId}/availability", h.EventAvailability)
	r.Post("/events/{eventId}/tiers/{tierId}/purchase", h.Purchase)
	r.Post("/events/{eventId}/waitlist", h.JoinWaitlist)
	r.Get("/reservations", h.ListReservations)

	r.Route("/reservations/{reservationId}", func(r chi.Router) {
		r.Get("/", h.GetReservation)
		r.Post("/confirm", h.ConfirmFree)
		r.Delete("/", h.CancelReservation)
	})
	r.Route("/waitlist/{entryId}", func(r chi.Router) {
		r.Get("/", h.GetWaitlistEntry)
		r.Delete("/", h.LeaveWaitlist)
	})
}

func (h *Handler) TierAvailability(w http.ResponseWriter, r *http.Request) {
	tierID := chi.URLParam(r, "tierId")
	snap, err := h.OrderService.TierAvailability(tierID)
	if err != nil {
		utils.WriteError(w, "Tier not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tier availability", snap))
}

func (h *Handler) EventAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	snaps, err := h.OrderService.EventAvailability(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, "Event not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event availability", snaps))
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		utils.WriteError(w, "Invalid quantity", fmt.Errorf("quantity: %w", models.ErrInvalidInput))
		return
	}
	quote, err := h.OrderService.Quote(chi.URLParam(r, "tierId"), qty)
	if err != nil {
		utils.WriteError(w, "Quote failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Quote", quote))
}

type purchaseBody struct {
	Quantity    int    `json:"quantity"`
	PresaleCode string `json:"presale_code,omitempty"`
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return
	}
	req := order.PurchaseRequest{
		EventID:     chi.URLParam(r, "eventId"),
		TierID:      chi.URLParam(r, "tierId"),
		BuyerID:     auth.UserID(r.Context()),
		Quantity:    body.Quantity,
		PresaleCode: body.PresaleCode,
	}

	reservation, err := h.OrderService.RequestPurchase(r.Context(), req)
	var waitlisted *order.WaitlistedError
	if errors.As(err, &waitlisted) {
		utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse("Sold out, added to waitlist", waitlisted.Entry))
		return
	}
	if err != nil {
		if !models.IsRecoverable(err) {
			h.Logger.Error("API", fmt.Sprintf("Purchase: tier %s buyer %s: %v", req.TierID, req.BuyerID, err))
		}
		utils.WriteError(w, "Purchase failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Reservation created", reservation))
}

// ownReservation loads the reservation and hides it from other buyers.
func (h *Handler) ownReservation(r *http.Request) (*models.Reservation, error) {
	id := chi.URLParam(r, "reservationId")
	res, err := h.OrderService.GetReservation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if res.BuyerID != auth.UserID(r.Context()) {
		return nil, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	return res, nil
}

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	rs, err := h.OrderService.ListReservations(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to list reservations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservations", rs))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.ownReservation(r)
	if err != nil {
		utils.WriteError(w, "Reservation not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation", res))
}

// ConfirmFree confirms a zero-amount reservation. Paid reservations are
// confirmed by the payment result consumer.
func (h *Handler) ConfirmFree(w http.ResponseWriter, r *http.Request) {
	res, err := h.ownReservation(r)
	if err != nil {
		utils.WriteError(w, "Reservation not found", err)
		return
	}
	if !res.Amount.IsZero() {
		utils.WriteJSON(w, http.StatusPaymentRequired, utils.ErrorResponse("Payment required", "reservation has a non-zero amount"))
		return
	}
	tickets, err := h.OrderService.ConfirmPurchase(r.Context(), res.ID)
	if err != nil {
		utils.WriteError(w, "Confirm failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation confirmed", tickets))
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	if err := h.OrderService.CancelPurchaseAs(r.Context(), id, auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, "Cancel failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type joinBody struct {
	TierID   string `json:"tier_id,omitempty"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var body joinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return
	}
	entry, err := h.Waitlist.Join(r.Context(), chi.URLParam(r, "eventId"), body.TierID, auth.UserID(r.Context()), body.Quantity)
	if err != nil {
		utils.WriteError(w, "Join waitlist failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Joined waitlist", entry))
}

type waitlistView struct {
	*models.WaitlistEntry
	QueuePosition int `json:"queue_position"`
}

func (h *Handler) GetWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryId")
	entry, err := h.Waitlist.Get(r.Context(), id)
	if err == nil && entry.BuyerID != auth.UserID(r.Context()) {
		err = fmt.Errorf("waitlist entry %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		utils.WriteError(w, "Waitlist entry not found", err)
		return
	}
	pos, err := h.Waitlist.Position(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Waitlist position unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Waitlist entry", waitlistView{WaitlistEntry: entry, QueuePosition: pos}))
}

func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Waitlist.Leave(r.Context(), chi.URLParam(r, "entryId"), auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, "Leave waitlist failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
