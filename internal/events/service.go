// Package events is the event lifecycle collaborator: organizers create and
// publish events and manage their tiers. Tier changes go through the ledger so
// capacity edits serialize with sales.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventDBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	TransitionStatus(ctx context.Context, id string, to models.EventStatus, now time.Time, from ...models.EventStatus) (bool, error)
	CreateTier(ctx context.Context, tier *models.TicketTier) error
	GetTier(ctx context.Context, id string) (*models.TicketTier, error)
	UpdateTierConfig(ctx context.Context, tier models.TicketTier) error
	SumTierCapacity(ctx context.Context, eventID, excludeID string) (int, error)
}

type TierLedger interface {
	Register(tier models.TicketTier, held []ledger.Handle) error
	Reconfigure(ctx context.Context, tierID string, mutate func(t *models.TicketTier) error, commit func(ctx context.Context, t models.TicketTier) error) (models.TicketTier, error)
	TiersForEvent(eventID string) []models.TicketTier
	EventSoldOut(eventID string) bool
}

// Waitlist is told about units a tier change made sellable, so queued buyers
// get them before the public does.
type Waitlist interface {
	OnCapacityFreed(ctx context.Context, tierID string, freed int) error
}

type EventService struct {
	DB       EventDBLayer
	Ledger   TierLedger
	Waitlist Waitlist
	Clock    clock.Clock
	Logger   *logger.Logger

	// tierMu serializes capacity edits so the summed tier capacity check
	// against MaxAttendees cannot interleave.
	tierMu sync.Mutex
}

func NewEventService(db EventDBLayer, l TierLedger, wl Waitlist, clk clock.Clock, log *logger.Logger) *EventService {
	return &EventService{DB: db, Ledger: l, Waitlist: wl, Clock: clk, Logger: log}
}

type CreateEventInput struct {
	OrganizerID      string    `json:"organizer_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	MaxAttendees     *int      `json:"max_attendees,omitempty"`
	EnableWaitlist   bool      `json:"enable_waitlist"`
	WaitlistCapacity *int      `json:"waitlist_capacity,omitempty"`
}

type TierInput struct {
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	ServiceFee     decimal.Decimal `json:"service_fee"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TotalQuantity  int             `json:"total_quantity"`
	MinPerOrder    int             `json:"min_per_order"`
	MaxPerOrder    int             `json:"max_per_order"`
	MaxPerUser     *int            `json:"max_per_user,omitempty"`
	IsPresaleOnly  bool            `json:"is_presale_only"`
	PresaleCode    string          `json:"presale_code,omitempty"`
	SalesStartDate *time.Time      `json:"sales_start_date,omitempty"`
	SalesEndDate   *time.Time      `json:"sales_end_date,omitempty"`
}

func (in CreateEventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("event name is required: %w", models.ErrInvalidInput)
	case in.StartDate.IsZero() || !in.EndDate.After(in.StartDate):
		return fmt.Errorf("event must end after it starts: %w", models.ErrInvalidInput)
	case in.MaxAttendees != nil && *in.MaxAttendees < 1:
		return fmt.Errorf("max attendees must be >= 1: %w", models.ErrInvalidInput)
	case in.WaitlistCapacity != nil && *in.WaitlistCapacity < 0:
		return fmt.Errorf("waitlist capacity must be >= 0: %w", models.ErrInvalidInput)
	}
	return nil
}

func (in TierInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("tier name is required: %w", models.ErrInvalidInput)
	case in.Price.IsNegative() || in.ServiceFee.IsNegative() || in.TaxRate.IsNegative():
		return fmt.Errorf("price, fee and tax must be >= 0: %w", models.ErrInvalidInput)
	case !fitsNumeric(in.Price, 12, 2) || !fitsNumeric(in.ServiceFee, 12, 2):
		return fmt.Errorf("price and fee take at most 2 decimals and 10 integer digits: %w", models.ErrInvalidInput)
	case !fitsNumeric(in.TaxRate, 6, 4):
		return fmt.Errorf("tax rate takes at most 4 decimals and must be below 100: %w", models.ErrInvalidInput)
	case in.TotalQuantity < 0:
		return fmt.Errorf("total quantity must be >= 0: %w", models.ErrInvalidInput)
	case in.MinPerOrder < 1 || in.MaxPerOrder < in.MinPerOrder:
		return fmt.Errorf("need 1 <= min_per_order <= max_per_order: %w", models.ErrInvalidInput)
	case in.MaxPerUser != nil && *in.MaxPerUser < 1:
		return fmt.Errorf("max per user must be >= 1: %w", models.ErrInvalidInput)
	case in.IsPresaleOnly && in.PresaleCode == "":
		return fmt.Errorf("presale tier needs a code: %w", models.ErrInvalidInput)
	case in.SalesStartDate != nil && in.SalesEndDate != nil && !in.SalesEndDate.After(*in.SalesStartDate):
		return fmt.Errorf("sales window must end after it starts: %w", models.ErrInvalidInput)
	}
	return nil
}

// fitsNumeric reports whether d is storable in a NUMERIC(precision, scale)
// column without rounding.
func fitsNumeric(d decimal.Decimal, precision, scale int32) bool {
	if !d.Round(scale).Equal(d) {
		return false
	}
	return d.Abs().LessThan(decimal.New(1, precision-scale))
}

func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	event := &models.Event{
		ID:               uuid.New().String(),
		OrganizerID:      in.OrganizerID,
		Name:             in.Name,
		Description:      in.Description,
		StartDate:        in.StartDate.UTC(),
		EndDate:          in.EndDate.UTC(),
		Status:           models.EventStatusDraft,
		MaxAttendees:     in.MaxAttendees,
		EnableWaitlist:   in.EnableWaitlist,
		WaitlistCapacity: in.WaitlistCapacity,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Created event %s (%s)", event.ID, event.Name))
	return event, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.DB.GetEvent(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.DB.ListEvents(ctx)
}

func (s *EventService) GetTier(ctx context.Context, id string) (*models.TicketTier, error) {
	return s.DB.GetTier(ctx, id)
}

// ListTiers returns the live ledger view of an event's tiers.
func (s *EventService) ListTiers(eventID string) []models.TicketTier {
	return s.Ledger.TiersForEvent(eventID)
}

// Publish opens a draft event for sales. It needs at least one active tier.
func (s *EventService) Publish(ctx context.Context, id string) error {
	active := 0
	for _, t := range s.Ledger.TiersForEvent(id) {
		if t.IsActive {
			active++
		}
	}
	if active == 0 {
		return fmt.Errorf("publish event %s: no active tiers: %w", id, models.ErrInvalidTransition)
	}
	return s.transition(ctx, id, models.EventStatusPublished, models.EventStatusDraft)
}

func (s *EventService) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.EventStatusCancelled,
		models.EventStatusDraft, models.EventStatusPublished, models.EventStatusSoldOut)
}

func (s *EventService) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.EventStatusCompleted,
		models.EventStatusPublished, models.EventStatusSoldOut)
}

func (s *EventService) transition(ctx context.Context, id string, to models.EventStatus, from ...models.EventStatus) error {
	ok, err := s.DB.TransitionStatus(ctx, id, to, s.Clock.Now(), from...)
	if err != nil {
		return fmt.Errorf("event %s -> %s: %w", id, to, err)
	}
	if !ok {
		if _, err := s.DB.GetEvent(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("event %s -> %s: %w", id, to, models.ErrInvalidTransition)
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %s is now %s", id, to))
	return nil
}

// AddTier creates a tier and registers it with the ledger. The summed tier
// capacity of an event may not exceed its MaxAttendees.
func (s *EventService) AddTier(ctx context.Context, eventID string, in TierInput) (*models.TicketTier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	s.tierMu.Lock()
	defer s.tierMu.Unlock()

	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCancelled || event.Status == models.EventStatusCompleted {
		return nil, fmt.Errorf("add tier to %s event: %w", event.Status, models.ErrInvalidTransition)
	}
	if err := s.checkAttendeeLimit(ctx, event, "", in.TotalQuantity); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	tier := &models.TicketTier{
		ID:             uuid.New().String(),
		EventID:        eventID,
		Name:           in.Name,
		Price:          in.Price,
		ServiceFee:     in.ServiceFee,
		TaxRate:        in.TaxRate,
		TotalQuantity:  in.TotalQuantity,
		MinPerOrder:    in.MinPerOrder,
		MaxPerOrder:    in.MaxPerOrder,
		MaxPerUser:     in.MaxPerUser,
		IsPresaleOnly:  in.IsPresaleOnly,
		SalesStartDate: in.SalesStartDate,
		SalesEndDate:   in.SalesEndDate,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.IsPresaleOnly {
		hash, err := HashPresaleCode(in.PresaleCode)
		if err != nil {
			return nil, fmt.Errorf("hash presale code: %w", err)
		}
		tier.PresaleCodeHash = hash
	}

	if err := s.DB.CreateTier(ctx, tier); err != nil {
		return nil, fmt.Errorf("create tier: %w", err)
	}
	if err := s.Ledger.Register(*tier, nil); err != nil {
		return nil, err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Added tier %s (%s, %d units) to event %s", tier.ID, tier.Name, tier.TotalQuantity, eventID))
	return tier, nil
}

// ResizeTier changes a tier's total capacity. It may not drop below what is
// already sold or held.
func (s *EventService) ResizeTier(ctx context.Context, tierID string, total int) (models.TicketTier, error) {
	if total < 0 {
		return models.TicketTier{}, fmt.Errorf("total quantity must be >= 0: %w", models.ErrInvalidInput)
	}

	s.tierMu.Lock()
	defer s.tierMu.Unlock()

	current, err := s.DB.GetTier(ctx, tierID)
	if err != nil {
		return models.TicketTier{}, err
	}
	event, err := s.DB.GetEvent(ctx, current.EventID)
	if err != nil {
		return models.TicketTier{}, err
	}
	if err := s.checkAttendeeLimit(ctx, event, tierID, total); err != nil {
		return models.TicketTier{}, err
	}

	return s.reconfigure(ctx, tierID, func(t *models.TicketTier) error {
		t.TotalQuantity = total
		return nil
	})
}

func (s *EventService) SetTierActive(ctx context.Context, tierID string, active bool) (models.TicketTier, error) {
	return s.reconfigure(ctx, tierID, func(t *models.TicketTier) error {
		t.IsActive = active
		return nil
	})
}

// SetPresaleCode makes the tier presale-only behind code. An empty code lifts
// the presale restriction.
func (s *EventService) SetPresaleCode(ctx context.Context, tierID, code string) (models.TicketTier, error) {
	hash := ""
	if code != "" {
		var err error
		if hash, err = HashPresaleCode(code); err != nil {
			return models.TicketTier{}, fmt.Errorf("hash presale code: %w", err)
		}
	}
	return s.reconfigure(ctx, tierID, func(t *models.TicketTier) error {
		t.IsPresaleOnly = code != ""
		t.PresaleCodeHash = hash
		return nil
	})
}

// reconfigure applies mutate through the ledger. Afterwards the event's
// SOLD_OUT status is re-derived and any units the change made sellable go to
// the waitlist.
func (s *EventService) reconfigure(ctx context.Context, tierID string, mutate func(t *models.TicketTier) error) (models.TicketTier, error) {
	now := s.Clock.Now()
	before := 0
	tier, err := s.Ledger.Reconfigure(ctx, tierID, func(t *models.TicketTier) error {
		before = sellable(*t)
		if err := mutate(t); err != nil {
			return err
		}
		t.UpdatedAt = now
		return nil
	}, func(ctx context.Context, t models.TicketTier) error {
		return s.DB.UpdateTierConfig(ctx, t)
	})
	if err != nil {
		return models.TicketTier{}, fmt.Errorf("reconfigure tier %s: %w", tierID, err)
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Tier %s reconfigured: total=%d active=%t presale=%t", tierID, tier.TotalQuantity, tier.IsActive, tier.IsPresaleOnly))

	s.syncSoldOut(ctx, tier.EventID)
	if freed := sellable(tier) - before; freed > 0 && s.Waitlist != nil {
		if err := s.Waitlist.OnCapacityFreed(ctx, tier.ID, freed); err != nil {
			s.Logger.Error("WAITLIST", fmt.Sprintf("promotion after reconfiguring tier %s failed: %v", tier.ID, err))
		}
	}
	return tier, nil
}

// syncSoldOut moves the event between PUBLISHED and SOLD_OUT to match the
// ledger. Other statuses are left alone.
func (s *EventService) syncSoldOut(ctx context.Context, eventID string) {
	to, from := models.EventStatusPublished, models.EventStatusSoldOut
	if s.Ledger.EventSoldOut(eventID) {
		to, from = models.EventStatusSoldOut, models.EventStatusPublished
	}
	ok, err := s.DB.TransitionStatus(ctx, eventID, to, s.Clock.Now(), from)
	if err != nil {
		s.Logger.Error("EVENT", fmt.Sprintf("derive status of event %s: %v", eventID, err))
		return
	}
	if ok {
		s.Logger.Info("EVENT", fmt.Sprintf("Event %s is now %s", eventID, to))
	}
}

func sellable(t models.TicketTier) int {
	if !t.IsActive {
		return 0
	}
	if n := t.TotalQuantity - t.SoldQuantity - t.ReservedQuantity; n > 0 {
		return n
	}
	return 0
}

func (s *EventService) checkAttendeeLimit(ctx context.Context, event *models.Event, excludeTierID string, total int) error {
	if event.MaxAttendees == nil {
		return nil
	}
	others, err := s.DB.SumTierCapacity(ctx, event.ID, excludeTierID)
	if err != nil {
		return fmt.Errorf("sum tier capacity: %w", err)
	}
	if others+total > *event.MaxAttendees {
		return fmt.Errorf("event %s: %d + %d > %d: %w", event.ID, others, total, *event.MaxAttendees, models.ErrAttendeeLimit)
	}
	return nil
}
