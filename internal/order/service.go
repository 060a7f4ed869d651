// Package order is the public purchase API of the inventory engine. It
// validates requests against tier rules and drives reservations through
// Reserve, Confirm and Release on the ledger.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/events"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/monitoring"
	"ms-inventory/internal/pricing"
	"ms-inventory/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationDBLayer interface {
	Create(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (*models.Reservation, error)
	MarkConfirmed(ctx context.Context, id string, now time.Time) error
	MarkExpired(ctx context.Context, id string, now time.Time) error
	MarkCancelled(ctx context.Context, id string, now time.Time) error
	ListHeld(ctx context.Context) ([]models.Reservation, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	SumHeldByBuyer(ctx context.Context, tierID, buyerID string) (int, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.Reservation, error)
}

type TicketDBLayer interface {
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	GetTicketsByReservation(ctx context.Context, reservationID string) ([]models.Ticket, error)
	CountActiveByBuyer(ctx context.Context, tierID, buyerID string) (int, error)
	AddTicketCount(ctx context.Context, eventID, tierID string, day time.Time, delta int) error
}

type EventDBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListTiers(ctx context.Context) ([]models.TicketTier, error)
	AddAttendees(ctx context.Context, id string, delta int) error
	TransitionStatus(ctx context.Context, id string, to models.EventStatus, now time.Time, from ...models.EventStatus) (bool, error)
}

type TierLedger interface {
	Register(tier models.TicketTier, held []ledger.Handle) error
	Reserve(ctx context.Context, tierID, handleID string, qty int, presaleOK bool, commit ledger.Commit) (ledger.Handle, error)
	Confirm(ctx context.Context, handle ledger.Handle, commit ledger.Commit) error
	Release(ctx context.Context, handle ledger.Handle, commit ledger.Commit) error
	Adopt(ctx context.Context, handle ledger.Handle) error
	Forget(tierID, handleID string)
	Flush(ctx context.Context, tierID string) error
	HandleHeld(tierID, handleID string) bool
	Tier(tierID string) (models.TicketTier, error)
	Snapshot(tierID string) (models.TierSnapshot, error)
	TiersForEvent(eventID string) []models.TicketTier
	EventSoldOut(eventID string) bool
}

type Waitlist interface {
	Join(ctx context.Context, eventID, tierID, buyerID string, qty int) (*models.WaitlistEntry, error)
	OnCapacityFreed(ctx context.Context, tierID string, freed int) error
	OnOfferExpired(ctx context.Context, r models.Reservation) error
	OnConverted(ctx context.Context, entryID string) error
}

type Notifier interface {
	NotifyConfirmed(ctx context.Context, r models.Reservation, tickets []models.Ticket) error
	NotifyReleased(ctx context.Context, r models.Reservation) error
}

type QRGenerator interface {
	GenerateEncryptedQR(ticket models.Ticket) ([]byte, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	ReservationTTL time.Duration
	SweepBatchSize int
}

type OrderService struct {
	Reservations ReservationDBLayer
	Tickets      TicketDBLayer
	Events       EventDBLayer
	Ledger       TierLedger
	Waitlist     Waitlist
	Notifier     Notifier
	QR           QRGenerator
	Pricing      *pricing.Calculator
	Tx           TxRunner
	Clock        clock.Clock
	Logger       *logger.Logger
	Config       Config
}

func NewOrderService(reservations ReservationDBLayer, tickets TicketDBLayer, eventsDB EventDBLayer, l TierLedger,
	wl Waitlist, notifier Notifier, qr QRGenerator, calc *pricing.Calculator, tx TxRunner,
	clk clock.Clock, log *logger.Logger, cfg Config) *OrderService {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 10 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	return &OrderService{
		Reservations: reservations,
		Tickets:      tickets,
		Events:       eventsDB,
		Ledger:       l,
		Waitlist:     wl,
		Notifier:     notifier,
		QR:           qr,
		Pricing:      calc,
		Tx:           tx,
		Clock:        clk,
		Logger:       log,
		Config:       cfg,
	}
}

type PurchaseRequest struct {
	EventID     string `json:"event_id"`
	TierID      string `json:"tier_id"`
	BuyerID     string `json:"buyer_id"`
	Quantity    int    `json:"quantity"`
	PresaleCode string `json:"presale_code,omitempty"`
}

// WaitlistedError is returned by RequestPurchase when the tier was sold out
// and the buyer was queued instead. It matches models.ErrSoldOutWaitlisted.
type WaitlistedError struct {
	Entry *models.WaitlistEntry
}

func (e *WaitlistedError) Error() string {
	return fmt.Sprintf("%v (position %d)", models.ErrSoldOutWaitlisted, e.Entry.Position)
}

func (e *WaitlistedError) Unwrap() error { return models.ErrSoldOutWaitlisted }

// Bootstrap loads every tier into the ledger. Reserved counts and live
// handles are rebuilt from HELD reservations, not from the stored counter,
// and the rebuilt counters are written back.
func (s *OrderService) Bootstrap(ctx context.Context) error {
	tiers, err := s.Events.ListTiers(ctx)
	if err != nil {
		return fmt.Errorf("list tiers: %w", err)
	}
	held, err := s.Reservations.ListHeld(ctx)
	if err != nil {
		return fmt.Errorf("list held reservations: %w", err)
	}

	handles := make(map[string][]ledger.Handle)
	for _, r := range held {
		handles[r.TierID] = append(handles[r.TierID], handleOf(r))
	}
	for _, t := range tiers {
		if err := s.Ledger.Register(t, handles[t.ID]); err != nil {
			return err
		}
		if err := s.Ledger.Flush(ctx, t.ID); err != nil {
			return fmt.Errorf("flush tier %s: %w", t.ID, err)
		}
	}
	s.Logger.LogProcess("BOOTSTRAP", fmt.Sprintf("Loaded %d tiers and %d held reservations", len(tiers), len(held)))
	return nil
}

// RequestPurchase validates the request and holds capacity for the buyer.
// The returned reservation must be confirmed before it expires.
func (s *OrderService) RequestPurchase(ctx context.Context, req PurchaseRequest) (*models.Reservation, error) {
	r, err := s.requestPurchase(ctx, req)
	monitoring.TrackReservation("reserve", outcomeOf(err))
	return r, err
}

func (s *OrderService) requestPurchase(ctx context.Context, req PurchaseRequest) (*models.Reservation, error) {
	if req.BuyerID == "" {
		return nil, fmt.Errorf("buyer id is required: %w", models.ErrInvalidInput)
	}
	event, err := s.Events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.OnSale() {
		return nil, models.ErrEventNotOnSale
	}
	tier, err := s.Ledger.Tier(req.TierID)
	if err != nil {
		return nil, err
	}
	if tier.EventID != event.ID {
		return nil, fmt.Errorf("tier %s in event %s: %w", req.TierID, req.EventID, models.ErrNotFound)
	}

	if req.Quantity < tier.MinPerOrder || req.Quantity > tier.MaxPerOrder {
		return nil, models.ErrQuantityOutOfRange
	}
	if err := s.checkUserLimit(ctx, tier, req.BuyerID, req.Quantity); err != nil {
		return nil, err
	}
	if !events.CheckPresaleCode(tier, req.PresaleCode) {
		s.Logger.LogSecurity("PRESALE", fmt.Sprintf("buyer %s presented a bad code for tier %s", req.BuyerID, tier.ID))
		return nil, models.ErrPresaleCodeRequired
	}
	if !tier.InSalesWindow(s.Clock.Now()) {
		return nil, models.ErrSalesWindowClosed
	}

	quote, err := s.Pricing.Quote(tier, req.Quantity)
	if err != nil {
		return nil, err
	}

	r, err := s.reserve(ctx, tier, req.BuyerID, req.Quantity, quote.Total, "", s.Config.ReservationTTL)
	if errors.Is(err, models.ErrInsufficientCapacity) && event.EnableWaitlist {
		entry, werr := s.Waitlist.Join(ctx, event.ID, tier.ID, req.BuyerID, req.Quantity)
		if werr != nil {
			return nil, werr
		}
		return nil, &WaitlistedError{Entry: entry}
	}
	if err != nil {
		return nil, err
	}

	s.Logger.LogReservation("HOLD", r.ID, fmt.Sprintf("buyer %s holds %d x tier %s for %s until %s",
		r.BuyerID, r.Quantity, r.TierID, r.Amount.StringFixed(s.Pricing.Places), r.ExpiresAt.Format(time.RFC3339)))
	return r, nil
}

// ReserveOffer holds capacity for a waitlisted buyer. onCreated runs in the
// same transaction as the reservation insert.
func (s *OrderService) ReserveOffer(ctx context.Context, entry models.WaitlistEntry, tierID string, ttl time.Duration, onCreated func(ctx context.Context, r models.Reservation) error) (*models.Reservation, error) {
	tier, err := s.Ledger.Tier(tierID)
	if err != nil {
		return nil, err
	}
	if entry.Quantity < tier.MinPerOrder || entry.Quantity > tier.MaxPerOrder {
		return nil, models.ErrQuantityOutOfRange
	}
	quote, err := s.Pricing.Quote(tier, entry.Quantity)
	if err != nil {
		return nil, err
	}
	r, err := s.reserve(ctx, tier, entry.BuyerID, entry.Quantity, quote.Total, entry.ID, ttl, onCreated)
	monitoring.TrackReservation("offer", outcomeOf(err))
	return r, err
}

func (s *OrderService) reserve(ctx context.Context, tier models.TicketTier, buyerID string, qty int, amount decimal.Decimal,
	entryID string, ttl time.Duration, hooks ...func(ctx context.Context, r models.Reservation) error) (*models.Reservation, error) {
	now := s.Clock.Now()
	r := &models.Reservation{
		ID:              uuid.New().String(),
		EventID:         tier.EventID,
		TierID:          tier.ID,
		BuyerID:         buyerID,
		Quantity:        qty,
		Amount:          amount,
		State:           models.ReservationHeld,
		WaitlistEntryID: entryID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		UpdatedAt:       now,
	}

	// The presale code was checked above, or at waitlist join time for offers.
	_, err := s.Ledger.Reserve(ctx, tier.ID, r.ID, qty, true, func(ctx context.Context) error {
		// Re-checked under the tier lock so two requests of one buyer
		// cannot both pass the cap.
		if err := s.checkUserLimit(ctx, tier, buyerID, qty); err != nil {
			return err
		}
		if err := s.Reservations.Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		for _, hook := range hooks {
			if err := hook(ctx, *r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *OrderService) checkUserLimit(ctx context.Context, tier models.TicketTier, buyerID string, qty int) error {
	if tier.MaxPerUser == nil {
		return nil
	}
	owned, err := s.Tickets.CountActiveByBuyer(ctx, tier.ID, buyerID)
	if err != nil {
		return fmt.Errorf("count tickets: %w", err)
	}
	held, err := s.Reservations.SumHeldByBuyer(ctx, tier.ID, buyerID)
	if err != nil {
		return fmt.Errorf("sum held: %w", err)
	}
	if owned+held+qty > *tier.MaxPerUser {
		return models.ErrPerUserLimitExceeded
	}
	return nil
}

func (s *OrderService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.Reservations.Get(ctx, id)
}

// ListReservations returns the buyer's reservations, newest first.
func (s *OrderService) ListReservations(ctx context.Context, buyerID string) ([]models.Reservation, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("buyer id is required: %w", models.ErrInvalidInput)
	}
	return s.Reservations.ListByBuyer(ctx, buyerID)
}

// ConfirmPurchase turns a HELD reservation into tickets. Confirming the same
// reservation again returns the tickets minted the first time.
func (s *OrderService) ConfirmPurchase(ctx context.Context, reservationID string) ([]models.Ticket, error) {
	tickets, err := s.confirmPurchase(ctx, reservationID)
	monitoring.TrackReservation("confirm", outcomeOf(err))
	return tickets, err
}

func (s *OrderService) confirmPurchase(ctx context.Context, reservationID string) ([]models.Ticket, error) {
	r, err := s.Reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch r.State {
	case models.ReservationConfirmed:
		s.Ledger.Forget(r.TierID, r.ID)
		return s.Tickets.GetTicketsByReservation(ctx, r.ID)
	case models.ReservationHeld:
	default:
		s.Ledger.Forget(r.TierID, r.ID)
		return nil, models.ErrHandleExpired
	}
	now := s.Clock.Now()
	if !now.Before(r.ExpiresAt) {
		return nil, models.ErrHandleExpired
	}
	event, err := s.Events.GetEvent(ctx, r.EventID)
	if err != nil {
		return nil, err
	}
	if !event.OnSale() {
		return nil, models.ErrEventNotOnSale
	}

	minted, err := s.mintTickets(*r, now)
	if err != nil {
		return nil, err
	}

	err = s.adoptHold(ctx, *r)
	if err == nil {
		err = s.Ledger.Confirm(ctx, handleOf(*r), func(ctx context.Context) error {
			if err := s.Reservations.MarkConfirmed(ctx, r.ID, now); err != nil {
				return err
			}
			if err := s.Tickets.CreateTickets(ctx, minted); err != nil {
				return fmt.Errorf("create tickets: %w", err)
			}
			if err := s.Events.AddAttendees(ctx, r.EventID, r.Quantity); err != nil {
				return fmt.Errorf("add attendees: %w", err)
			}
			if err := s.Tickets.AddTicketCount(ctx, r.EventID, r.TierID, now, r.Quantity); err != nil {
				return fmt.Errorf("ticket count: %w", err)
			}
			if r.IsOffer() {
				if err := s.Waitlist.OnConverted(ctx, r.WaitlistEntryID); err != nil {
					return fmt.Errorf("convert waitlist entry: %w", err)
				}
			}
			return nil
		})
	}
	if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrHandleExpired) {
		// Lost the race against another confirm, a sweep or a cancel.
		s.Ledger.Forget(r.TierID, r.ID)
		return s.settledConfirm(ctx, *r)
	}
	if err != nil {
		return nil, err
	}
	r.State = models.ReservationConfirmed

	monitoring.TrackTicketsMinted(r.EventID, len(minted))
	s.Logger.LogReservation("CONFIRM", r.ID, fmt.Sprintf("minted %d tickets for buyer %s on tier %s", len(minted), r.BuyerID, r.TierID))

	if s.Ledger.EventSoldOut(r.EventID) {
		ok, err := s.Events.TransitionStatus(ctx, r.EventID, models.EventStatusSoldOut, now, models.EventStatusPublished)
		if err != nil {
			s.Logger.Error("ORDER", fmt.Sprintf("mark event %s sold out: %v", r.EventID, err))
		} else if ok {
			s.Logger.Info("ORDER", fmt.Sprintf("Event %s is sold out", r.EventID))
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.NotifyConfirmed(ctx, *r, minted); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("confirm notification for %s failed: %v", r.ID, err))
		}
	}
	return minted, nil
}

// settledConfirm answers a confirm for a reservation someone else already
// settled: the minted tickets if it was confirmed, ErrHandleExpired otherwise.
func (s *OrderService) settledConfirm(ctx context.Context, r models.Reservation) ([]models.Ticket, error) {
	current, err := s.Reservations.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if current.State == models.ReservationConfirmed {
		return s.Tickets.GetTicketsByReservation(ctx, r.ID)
	}
	return nil, models.ErrHandleExpired
}

// adoptHold makes sure the ledger tracks r's hold. Another instance may have
// placed it.
func (s *OrderService) adoptHold(ctx context.Context, r models.Reservation) error {
	if s.Ledger.HandleHeld(r.TierID, r.ID) {
		return nil
	}
	return s.Ledger.Adopt(ctx, handleOf(r))
}

func (s *OrderService) mintTickets(r models.Reservation, now time.Time) ([]models.Ticket, error) {
	unit := s.Pricing.UnitPrice(r.Amount, r.Quantity)
	tickets := make([]models.Ticket, r.Quantity)
	for i := range tickets {
		t := models.Ticket{
			ID:            uuid.New().String(),
			ReservationID: r.ID,
			TierID:        r.TierID,
			EventID:       r.EventID,
			BuyerID:       r.BuyerID,
			TicketNumber:  utils.GenerateTicketNumber(),
			Status:        models.TicketValid,
			PurchasePrice: unit,
			PurchasedAt:   now,
		}
		if s.QR != nil {
			code, err := s.QR.GenerateEncryptedQR(t)
			if err != nil {
				return nil, fmt.Errorf("failed to generate QR: %w", err)
			}
			t.QRCode = code
		}
		tickets[i] = t
	}
	return tickets, nil
}

// ExpirePurchase releases a HELD reservation whose payment failed or timed
// out. Releasing an already released reservation is a no-op.
func (s *OrderService) ExpirePurchase(ctx context.Context, reservationID string) error {
	err := s.release(ctx, reservationID, "", s.Reservations.MarkExpired, "expire")
	monitoring.TrackReservation("expire", outcomeOf(err))
	return err
}

// CancelPurchase is the buyer walking away before paying. It behaves like an
// expiry.
func (s *OrderService) CancelPurchase(ctx context.Context, reservationID string) error {
	err := s.release(ctx, reservationID, "", s.Reservations.MarkCancelled, "cancel")
	monitoring.TrackReservation("cancel", outcomeOf(err))
	return err
}

// CancelPurchaseAs cancels only if buyerID owns the reservation.
func (s *OrderService) CancelPurchaseAs(ctx context.Context, reservationID, buyerID string) error {
	err := s.release(ctx, reservationID, buyerID, s.Reservations.MarkCancelled, "cancel")
	monitoring.TrackReservation("cancel", outcomeOf(err))
	return err
}

func (s *OrderService) release(ctx context.Context, reservationID, buyerID string,
	mark func(ctx context.Context, id string, now time.Time) error, action string) error {
	r, err := s.Reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if buyerID != "" && r.BuyerID != buyerID {
		return fmt.Errorf("reservation %s: %w", reservationID, models.ErrNotFound)
	}
	switch r.State {
	case models.ReservationExpired, models.ReservationCancelled:
		s.Ledger.Forget(r.TierID, r.ID)
		return nil
	case models.ReservationConfirmed:
		s.Ledger.Forget(r.TierID, r.ID)
		return models.ErrHandleConfirmed
	}

	now := s.Clock.Now()
	marked := false
	commit := func(ctx context.Context) error {
		if err := mark(ctx, r.ID, now); err != nil {
			return err
		}
		marked = true
		return nil
	}
	if err := s.adoptHold(ctx, *r); errors.Is(err, models.ErrHandleExpired) {
		// No units are reserved for the hold; settle the row only.
		if err := s.Tx.WithTx(ctx, commit); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		return nil
	} else if err != nil {
		return err
	}

	err = s.Ledger.Release(ctx, handleOf(*r), commit)
	if errors.Is(err, models.ErrInvalidTransition) {
		// Someone else settled it first.
		s.Ledger.Forget(r.TierID, r.ID)
		return s.settledRelease(ctx, r.ID)
	}
	if err != nil {
		return err
	}
	if !marked {
		// A confirm took the handle between the read and the release.
		return s.settledRelease(ctx, r.ID)
	}
	s.afterRelease(ctx, *r, action)
	return nil
}

func (s *OrderService) settledRelease(ctx context.Context, id string) error {
	current, err := s.Reservations.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.State == models.ReservationConfirmed {
		return models.ErrHandleConfirmed
	}
	return nil
}

// SweepExpired claims expired reservations, returns their units to the
// ledger and hands them to the waitlist. It returns how many were released.
func (s *OrderService) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { monitoring.ObserveSweep(time.Since(start).Seconds()) }()

	claimed, err := s.Reservations.SweepExpired(ctx, s.Clock.Now(), s.Config.SweepBatchSize)
	released := 0
	for _, r := range claimed {
		// The claim already settled the row, so the release needs no commit.
		rerr := s.adoptHold(ctx, r)
		if rerr == nil {
			rerr = s.Ledger.Release(ctx, handleOf(r), nil)
		}
		if rerr != nil {
			// Bootstrap rebuilds held units from HELD rows only, so the
			// units come back on restart.
			s.Logger.Error("SWEEP", fmt.Sprintf("release %s: %v", r.ID, rerr))
			continue
		}
		released++
		monitoring.TrackReservation("expire", "ok")
		s.afterRelease(ctx, r, "expire")
	}
	if err != nil {
		return released, fmt.Errorf("sweep expired: %w", err)
	}
	if released > 0 {
		s.Logger.LogProcess("SWEEP", fmt.Sprintf("Released %d expired reservations", released))
	}
	return released, nil
}

// afterRelease runs once the hold is gone and the tier is unlocked.
func (s *OrderService) afterRelease(ctx context.Context, r models.Reservation, action string) {
	s.Logger.LogReservation(action, r.ID, fmt.Sprintf("released %d x tier %s held by %s", r.Quantity, r.TierID, r.BuyerID))

	if s.Notifier != nil {
		if err := s.Notifier.NotifyReleased(ctx, r); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("release notification for %s failed: %v", r.ID, err))
		}
	}
	if s.Waitlist == nil {
		return
	}
	var err error
	if r.IsOffer() {
		err = s.Waitlist.OnOfferExpired(ctx, r)
	} else {
		err = s.Waitlist.OnCapacityFreed(ctx, r.TierID, r.Quantity)
	}
	if err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("promotion after %s of %s failed: %v", action, r.ID, err))
	}
}

func (s *OrderService) TierAvailability(tierID string) (models.TierSnapshot, error) {
	return s.Ledger.Snapshot(tierID)
}

// EventAvailability returns a snapshot per tier of the event, by tier id.
func (s *OrderService) EventAvailability(ctx context.Context, eventID string) ([]models.TierSnapshot, error) {
	if _, err := s.Events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	tiers := s.Ledger.TiersForEvent(eventID)
	snaps := make([]models.TierSnapshot, 0, len(tiers))
	for _, t := range tiers {
		snap, err := s.Ledger.Snapshot(t.ID)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *OrderService) Quote(tierID string, qty int) (pricing.Quote, error) {
	tier, err := s.Ledger.Tier(tierID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.Pricing.Quote(tier, qty)
}

func handleOf(r models.Reservation) ledger.Handle {
	return ledger.Handle{ID: r.ID, TierID: r.TierID, Quantity: r.Quantity}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrSoldOutWaitlisted):
		return "waitlisted"
	case errors.Is(err, models.ErrInsufficientCapacity):
		return "sold_out"
	case models.IsRecoverable(err):
		return "rejected"
	default:
		return "error"
	}
}
