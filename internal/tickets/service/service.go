package tickets

import (
	"context"
	"fmt"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/tickets/qr"
)

type TicketDBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketsByBuyer(ctx context.Context, buyerID string) ([]models.Ticket, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.TicketStatus, at time.Time) (bool, error)
	GetTotalTicketsCount(ctx context.Context) (int, error)
	GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error)
}

type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type TokenDecoder interface {
	Decode(token string) (models.TicketQRPayload, error)
}

type TicketService struct {
	DB     TicketDBLayer
	Events EventReader
	QR     TokenDecoder
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewTicketService(db TicketDBLayer, events EventReader, decoder TokenDecoder, clk clock.Clock, log *logger.Logger) *TicketService {
	return &TicketService{DB: db, Events: events, QR: decoder, Clock: clk, Logger: log}
}

func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, ticketID)
}

// GetTicketAs hides tickets of other buyers behind ErrNotFound.
func (s *TicketService) GetTicketAs(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error) {
	t, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != buyerID {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrNotFound)
	}
	return t, nil
}

func (s *TicketService) GetTicketsByBuyer(ctx context.Context, buyerID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByBuyer(ctx, buyerID)
}

// CheckIn admits a VALID ticket exactly once.
func (s *TicketService) CheckIn(ctx context.Context, ticketID string) (*models.Ticket, error) {
	t, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketValid {
		return nil, fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, models.ErrInvalidTransition)
	}
	event, err := s.Events.GetEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCancelled {
		return nil, fmt.Errorf("event %s is cancelled: %w", event.ID, models.ErrInvalidTransition)
	}

	now := s.Clock.Now()
	ok, err := s.DB.CompareAndSetStatus(ctx, t.ID, models.TicketValid, models.TicketCheckedIn, now)
	if err != nil {
		return nil, fmt.Errorf("check in ticket %s: %w", t.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("ticket %s changed during check-in: %w", t.ID, models.ErrInvalidTransition)
	}
	t.Status = models.TicketCheckedIn
	t.CheckedInAt = &now
	s.Logger.Info("CHECKIN", fmt.Sprintf("Ticket %s checked in for event %s", t.TicketNumber, t.EventID))
	return t, nil
}

// CheckInToken admits the ticket a scanned QR token points at.
func (s *TicketService) CheckInToken(ctx context.Context, token string) (*models.Ticket, error) {
	payload, err := s.QR.Decode(token)
	if err != nil {
		s.Logger.LogSecurity("CHECKIN", fmt.Sprintf("rejected QR token: %v", err))
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidInput)
	}
	t, err := s.DB.GetTicketByID(ctx, payload.TicketID)
	if err != nil {
		return nil, err
	}
	if t.QRPayload() != payload {
		s.Logger.LogSecurity("CHECKIN", fmt.Sprintf("QR payload does not match ticket %s", t.ID))
		return nil, fmt.Errorf("%v: %w", qr.ErrInvalidToken, models.ErrInvalidInput)
	}
	return s.CheckIn(ctx, t.ID)
}

func (s *TicketService) GetTotalTicketsCount(ctx context.Context) (int, error) {
	return s.DB.GetTotalTicketsCount(ctx)
}

func (s *TicketService) GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	return s.DB.GetTicketCountsForEvent(ctx, eventID)
}
