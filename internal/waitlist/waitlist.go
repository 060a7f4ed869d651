// Package waitlist queues buyers for sold-out tiers and hands freed capacity
// to them in order.
//
// Each event has one queue per tier plus an event-wide queue (empty tier id)
// for buyers who take any tier. When units free up on a tier, its own queue
// is served before the event-wide one. Within a queue, entries are served by
// missed offers and then by position, and serving stops at the first entry
// that needs more units than are left.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/monitoring"

	"github.com/google/uuid"
)

type WaitlistDBLayer interface {
	Create(ctx context.Context, e *models.WaitlistEntry) error
	Get(ctx context.Context, id string) (*models.WaitlistEntry, error)
	FindActive(ctx context.Context, eventID, tierID, buyerID string) (*models.WaitlistEntry, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	NextPosition(ctx context.Context, eventID, tierID string) (int, error)
	ListWaiting(ctx context.Context, eventID, tierID string, limit int) ([]models.WaitlistEntry, error)
	Transition(ctx context.Context, e *models.WaitlistEntry, from models.WaitlistStatus) error
}

type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type TierReader interface {
	Tier(tierID string) (models.TicketTier, error)
}

// Reserver creates and cancels offer reservations. The order coordinator
// implements it. onCreated runs inside the reservation's transaction.
type Reserver interface {
	ReserveOffer(ctx context.Context, entry models.WaitlistEntry, tierID string, ttl time.Duration, onCreated func(ctx context.Context, r models.Reservation) error) (*models.Reservation, error)
	CancelPurchase(ctx context.Context, reservationID string) error
}

type Notifier interface {
	NotifyOffer(ctx context.Context, entry models.WaitlistEntry, r models.Reservation) error
}

type Config struct {
	OfferTTL        time.Duration
	MaxMissedOffers int
}

type Manager struct {
	DB       WaitlistDBLayer
	Events   EventReader
	Tiers    TierReader
	Reserver Reserver
	Notifier Notifier
	Clock    clock.Clock
	Logger   *logger.Logger
	Config   Config

	mu     sync.Mutex
	queues map[string]*sync.Mutex
}

func NewManager(db WaitlistDBLayer, events EventReader, tiers TierReader, notifier Notifier, clk clock.Clock, log *logger.Logger, cfg Config) *Manager {
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 15 * time.Minute
	}
	return &Manager{
		DB:       db,
		Events:   events,
		Tiers:    tiers,
		Notifier: notifier,
		Clock:    clk,
		Logger:   log,
		Config:   cfg,
		queues:   make(map[string]*sync.Mutex),
	}
}

// SetReserver wires the coordinator after both are constructed.
func (m *Manager) SetReserver(r Reserver) {
	m.Reserver = r
}

func (m *Manager) lock(eventID string) func() {
	m.mu.Lock()
	mu, ok := m.queues[eventID]
	if !ok {
		mu = &sync.Mutex{}
		m.queues[eventID] = mu
	}
	m.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Join appends buyerID to the queue of (eventID, tierID). An empty tierID
// joins the event-wide queue. Joining again while active returns the
// existing entry.
func (m *Manager) Join(ctx context.Context, eventID, tierID, buyerID string, qty int) (*models.WaitlistEntry, error) {
	if buyerID == "" || qty < 1 {
		return nil, fmt.Errorf("join waitlist: %w", models.ErrInvalidInput)
	}
	event, err := m.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.EnableWaitlist {
		return nil, fmt.Errorf("event %s has no waitlist: %w", eventID, models.ErrInvalidInput)
	}
	if tierID != "" {
		tier, err := m.Tiers.Tier(tierID)
		if err != nil {
			return nil, err
		}
		if tier.EventID != eventID {
			return nil, fmt.Errorf("tier %s: %w", tierID, models.ErrNotFound)
		}
		if qty < tier.MinPerOrder || qty > tier.MaxPerOrder {
			return nil, models.ErrQuantityOutOfRange
		}
	}

	unlock := m.lock(eventID)
	defer unlock()

	existing, err := m.DB.FindActive(ctx, eventID, tierID, buyerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if event.WaitlistCapacity != nil {
		n, err := m.DB.CountActive(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if n >= *event.WaitlistCapacity {
			monitoring.TrackWaitlist("full")
			return nil, models.ErrWaitlistFull
		}
	}

	pos, err := m.DB.NextPosition(ctx, eventID, tierID)
	if err != nil {
		return nil, err
	}
	now := m.Clock.Now()
	entry := &models.WaitlistEntry{
		ID:        uuid.New().String(),
		EventID:   eventID,
		TierID:    tierID,
		BuyerID:   buyerID,
		Quantity:  qty,
		Position:  pos,
		Status:    models.WaitlistWaiting,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	if err := m.DB.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	monitoring.TrackWaitlist("join")
	m.Logger.LogWaitlist("JOIN", entry.ID, fmt.Sprintf("buyer %s joined event %s tier %q at position %d", buyerID, eventID, tierID, pos))
	return entry, nil
}

func (m *Manager) Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	return m.DB.Get(ctx, entryID)
}

// Position returns the 1-based place of a WAITING entry in its queue's
// current promotion order, or 0 if the entry is not waiting.
func (m *Manager) Position(ctx context.Context, entryID string) (int, error) {
	entry, err := m.DB.Get(ctx, entryID)
	if err != nil {
		return 0, err
	}
	if entry.Status != models.WaitlistWaiting {
		return 0, nil
	}
	waiting, err := m.DB.ListWaiting(ctx, entry.EventID, entry.TierID, 0)
	if err != nil {
		return 0, err
	}
	for i, e := range waiting {
		if e.ID == entryID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Leave takes buyerID's entry off the queue. An outstanding offer is given up.
func (m *Manager) Leave(ctx context.Context, entryID, buyerID string) error {
	entry, err := m.DB.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.BuyerID != buyerID {
		return fmt.Errorf("waitlist entry %s: %w", entryID, models.ErrNotFound)
	}

	unlock := m.lock(entry.EventID)
	// An offer may have been issued or expired since the first read.
	if entry, err = m.DB.Get(ctx, entryID); err != nil {
		unlock()
		return err
	}
	from := entry.Status
	if !entry.Active() {
		unlock()
		return fmt.Errorf("leave waitlist entry in %s: %w", from, models.ErrInvalidTransition)
	}
	reservationID := entry.ReservationID
	entry.Status = models.WaitlistLeft
	entry.ReservationID = ""
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = m.Clock.Now()
	err = m.DB.Transition(ctx, entry, from)
	unlock()
	if err != nil {
		return err
	}

	monitoring.TrackWaitlist("leave")
	m.Logger.LogWaitlist("LEAVE", entryID, fmt.Sprintf("buyer %s left (was %s)", buyerID, from))

	if from == models.WaitlistOffered && reservationID != "" {
		// Cancelling the offer frees its units, which the coordinator hands
		// back to the queue through OnOfferExpired.
		if err := m.Reserver.CancelPurchase(ctx, reservationID); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
			return fmt.Errorf("cancel offer %s: %w", reservationID, err)
		}
	}
	return nil
}

// OnCapacityFreed offers up to freed units of tierID to waiting buyers. It
// must not be called while the tier is locked.
func (m *Manager) OnCapacityFreed(ctx context.Context, tierID string, freed int) error {
	if freed <= 0 {
		return nil
	}
	tier, err := m.Tiers.Tier(tierID)
	if err != nil {
		return err
	}
	event, err := m.Events.GetEvent(ctx, tier.EventID)
	if err != nil {
		return err
	}
	if !event.EnableWaitlist || !event.OnSale() {
		return nil
	}

	unlock := m.lock(event.ID)
	defer unlock()

	queues := []string{tierID}
	if !tier.IsPresaleOnly {
		queues = append(queues, "")
	}

	remaining := freed
	for remaining > 0 {
		entry, err := m.head(ctx, event.ID, queues)
		if err != nil {
			return err
		}
		if entry == nil || entry.Quantity > remaining {
			return nil
		}

		offered, err := m.offer(ctx, *entry, tierID)
		switch {
		case err == nil:
			remaining -= offered
		case errors.Is(err, models.ErrInsufficientCapacity),
			errors.Is(err, models.ErrTierInactive),
			errors.Is(err, models.ErrSalesWindowClosed):
			m.Logger.LogWaitlist("HOLD", entry.ID, fmt.Sprintf("tier %s cannot serve offers right now: %v", tierID, err))
			return nil
		case models.IsRecoverable(err):
			// The buyer cannot take this offer at all; drop them so the
			// next in line is not blocked.
			if derr := m.drop(ctx, *entry, err); derr != nil {
				return derr
			}
		default:
			return fmt.Errorf("offer tier %s to entry %s: %w", tierID, entry.ID, err)
		}
	}
	return nil
}

func (m *Manager) head(ctx context.Context, eventID string, queues []string) (*models.WaitlistEntry, error) {
	for _, q := range queues {
		entries, err := m.DB.ListWaiting(ctx, eventID, q, 1)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return &entries[0], nil
		}
	}
	return nil, nil
}

func (m *Manager) offer(ctx context.Context, entry models.WaitlistEntry, tierID string) (int, error) {
	r, err := m.Reserver.ReserveOffer(ctx, entry, tierID, m.Config.OfferTTL, func(ctx context.Context, r models.Reservation) error {
		offered := entry
		expires := r.ExpiresAt
		offered.Status = models.WaitlistOffered
		offered.ReservationID = r.ID
		offered.OfferExpiresAt = &expires
		offered.UpdatedAt = m.Clock.Now()
		return m.DB.Transition(ctx, &offered, models.WaitlistWaiting)
	})
	if err != nil {
		return 0, err
	}

	monitoring.TrackWaitlist("offer")
	m.Logger.LogWaitlist("OFFER", entry.ID, fmt.Sprintf("buyer %s offered %d x tier %s until %s (reservation %s)",
		entry.BuyerID, entry.Quantity, tierID, r.ExpiresAt.Format(time.RFC3339), r.ID))

	entry.Status = models.WaitlistOffered
	entry.ReservationID = r.ID
	if m.Notifier != nil {
		if err := m.Notifier.NotifyOffer(ctx, entry, *r); err != nil {
			m.Logger.Warn("WAITLIST", fmt.Sprintf("offer notification for entry %s failed: %v", entry.ID, err))
		}
	}
	return r.Quantity, nil
}

func (m *Manager) drop(ctx context.Context, entry models.WaitlistEntry, cause error) error {
	entry.Status = models.WaitlistExpired
	entry.UpdatedAt = m.Clock.Now()
	if err := m.DB.Transition(ctx, &entry, models.WaitlistWaiting); err != nil {
		return err
	}
	monitoring.TrackWaitlist("drop")
	m.Logger.LogWaitlist("DROP", entry.ID, fmt.Sprintf("buyer %s removed: %v", entry.BuyerID, cause))
	return nil
}

// OnOfferExpired handles an offer reservation that was released without
// being confirmed. The entry goes back to WAITING behind everyone who has
// missed fewer offers, or is expired once it has missed more than
// MaxMissedOffers. The freed units are then offered again.
func (m *Manager) OnOfferExpired(ctx context.Context, r models.Reservation) error {
	if !r.IsOffer() {
		return m.OnCapacityFreed(ctx, r.TierID, r.Quantity)
	}

	entry, err := m.DB.Get(ctx, r.WaitlistEntryID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if entry != nil && entry.Status == models.WaitlistOffered && entry.ReservationID == r.ID {
		unlock := m.lock(entry.EventID)
		entry, err = m.DB.Get(ctx, r.WaitlistEntryID)
		if err != nil {
			unlock()
			return err
		}
		if entry.Status != models.WaitlistOffered || entry.ReservationID != r.ID {
			unlock()
			return m.OnCapacityFreed(ctx, r.TierID, r.Quantity)
		}
		entry.MissedOffers++
		entry.ReservationID = ""
		entry.OfferExpiresAt = nil
		entry.UpdatedAt = m.Clock.Now()
		entry.Status = models.WaitlistWaiting
		action := "REQUEUE"
		if entry.MissedOffers > m.Config.MaxMissedOffers {
			entry.Status = models.WaitlistExpired
			action = "EXPIRE"
		}
		err := m.DB.Transition(ctx, entry, models.WaitlistOffered)
		unlock()
		if err != nil && !errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		if err == nil {
			monitoring.TrackWaitlist(strings.ToLower(action))
			m.Logger.LogWaitlist(action, entry.ID, fmt.Sprintf("offer %s lapsed, missed offers=%d", r.ID, entry.MissedOffers))
		}
	}

	return m.OnCapacityFreed(ctx, r.TierID, r.Quantity)
}

// OnConverted marks the entry of a confirmed offer CONVERTED. It runs inside
// the confirmation's transaction.
func (m *Manager) OnConverted(ctx context.Context, entryID string) error {
	entry, err := m.DB.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status == models.WaitlistConverted {
		return nil
	}
	from := entry.Status
	entry.Status = models.WaitlistConverted
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = m.Clock.Now()
	if err := m.DB.Transition(ctx, entry, from); err != nil {
		return err
	}
	monitoring.TrackWaitlist("convert")
	m.Logger.LogWaitlist("CONVERT", entryID, fmt.Sprintf("buyer %s converted via reservation %s", entry.BuyerID, entry.ReservationID))
	return nil
}
