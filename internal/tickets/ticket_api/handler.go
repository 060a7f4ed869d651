package ticket_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	tickets "ms-inventory/internal/tickets/service"
	"ms-inventory/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Refunder interface {
	RefundAs(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error)
}

type Handler struct {
	TicketService *tickets.TicketService
	Refunds       Refunder
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, refunds Refunder, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Refunds: refunds, Logger: log}
}

// RegisterRoutes mounts the ticket routes behind the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tickets", h.ListMyTickets)
	r.Post("/tickets/checkin", h.CheckInByToken)
	r.Get("/events/{eventId}/ticket-counts", h.GetTicketCountsForEvent)
	r.Route("/tickets/{ticketId}", func(r chi.Router) {
		r.Get("/", h.ViewTicket)
		r.Get("/qr", h.TicketQR)
		r.Post("/refund", h.RefundTicket)
		r.Post("/checkin", h.CheckInTicket)
	})
}

func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.GetTicketsByBuyer(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to retrieve tickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", list))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.TicketService.GetTicketAs(r.Context(), chi.URLParam(r, "ticketId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket", t))
}

// TicketQR serves the ticket's QR code as a PNG image.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	t, err := h.TicketService.GetTicketAs(r.Context(), chi.URLParam(r, "ticketId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	if len(t.QRCode) == 0 {
		utils.WriteError(w, "Ticket has no QR code", fmt.Errorf("ticket %s: %w", t.ID, models.ErrNotFound))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(t.QRCode)
}

func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	t, err := h.Refunds.RefundAs(r.Context(), ticketID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("RefundTicket: ticket %s: %v", ticketID, err))
		utils.WriteError(w, "Refund failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket refunded", t))
}

func (h *Handler) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.TicketService.CheckIn(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, "Check-in failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket checked in", t))
}

// CheckInByToken expects {"encrypted_qr": "<token>"} as scanned at the gate.
func (h *Handler) CheckInByToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EncryptedQR == "" {
		utils.WriteError(w, "Invalid request body", fmt.Errorf("encrypted_qr is required: %w", models.ErrInvalidInput))
		return
	}
	t, err := h.TicketService.CheckInToken(r.Context(), body.EncryptedQR)
	if err != nil {
		utils.WriteError(w, "Check-in failed", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CheckInByToken: ticket %s admitted by %s", t.TicketNumber, auth.UserID(r.Context())))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket checked in", t))
}

func (h *Handler) GetTicketCountsForEvent(w http.ResponseWriter, r *http.Request) {
	counts, err := h.TicketService.GetTicketCountsForEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Error retrieving ticket counts", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket counts", counts))
}
