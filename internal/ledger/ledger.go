// Package ledger owns the capacity counters of every ticket tier.
//
// Each tier is guarded by its own mutex. A mutation computes the new
// (sold, reserved) pair under that mutex, persists it together with the
// caller's commit hook in one transaction, and only then applies it in
// memory. Either everything lands or nothing does. Different tiers never
// share a lock.
//
// Several ledgers may share one store. The stored counters are replaced
// only if they still hold the values this ledger last saw; a ledger that
// loses that race reloads the row and plans the mutation again.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/database"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/monitoring"

	"github.com/cenkalti/backoff/v4"
)

// Store persists tier counters. The ledger calls SaveCounters inside the
// transaction that also runs the caller's commit hook. SaveCounters must fail
// with models.ErrCounterConflict when the stored counters no longer equal from.
type Store interface {
	SaveCounters(ctx context.Context, tierID string, from, to models.TierCounters) error
	GetTier(ctx context.Context, id string) (*models.TicketTier, error)
}

// TxRunner runs fn in one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Commit is work that must succeed or fail together with a counter change.
// It runs while the tier is locked, so it must not call back into the ledger.
type Commit func(ctx context.Context) error

// Handle identifies units held by one reservation.
type Handle struct {
	ID       string
	TierID   string
	Quantity int
}

type tierState struct {
	mu   sync.Mutex
	tier models.TicketTier
	// stored is what the store held after this ledger's last read or write.
	stored models.TierCounters
	// handles maps a held handle to its quantity. Confirmed and released
	// handles are dropped.
	handles map[string]int
}

type Ledger struct {
	mu    sync.RWMutex
	tiers map[string]*tierState

	store      Store
	tx         TxRunner
	clock      clock.Clock
	logger     *logger.Logger
	maxRetries uint64
	retryBase  time.Duration
}

type Option func(*Ledger)

func WithLogger(l *logger.Logger) Option {
	return func(led *Ledger) { led.logger = l }
}

// WithRetry bounds how often a commit is retried after a serialization
// conflict, and the initial backoff between attempts.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(led *Ledger) {
		led.maxRetries = maxRetries
		if base > 0 {
			led.retryBase = base
		}
	}
}

// New builds a ledger. store and tx may be nil for a purely in-memory ledger.
func New(store Store, tx TxRunner, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		tiers:      make(map[string]*tierState),
		store:      store,
		tx:         tx,
		clock:      clk,
		maxRetries: 5,
		retryBase:  10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register loads a tier and the handles still held against it. The reserved
// counter is rebuilt from held; the sold counter is taken from the row.
func (l *Ledger) Register(tier models.TicketTier, held []Handle) error {
	stored := tier.Counters()
	reserved := 0
	handles := make(map[string]int, len(held))
	for _, h := range held {
		if h.TierID != tier.ID || h.Quantity <= 0 {
			return fmt.Errorf("register tier %s: bad handle %s: %w", tier.ID, h.ID, models.ErrInvalidInput)
		}
		handles[h.ID] = h.Quantity
		reserved += h.Quantity
	}
	tier.ReservedQuantity = reserved
	if err := checkInvariant(tier.TotalQuantity, tier.SoldQuantity, tier.ReservedQuantity); err != nil {
		return fmt.Errorf("register tier %s: %w", tier.ID, err)
	}

	l.mu.Lock()
	l.tiers[tier.ID] = &tierState{tier: tier, stored: stored, handles: handles}
	l.mu.Unlock()

	monitoring.SetTierCounters(tier.EventID, tier.ID, available(tier), tier.ReservedQuantity)
	l.logger.LogLedger("REGISTER", tier.ID, fmt.Sprintf("total=%d sold=%d reserved=%d", tier.TotalQuantity, tier.SoldQuantity, tier.ReservedQuantity))
	return nil
}

// Flush writes the tier's counters if they differ from the stored ones, as
// after Register rebuilt the reserved quantity. If another ledger wrote
// first, its counters win.
func (l *Ledger) Flush(ctx context.Context, tierID string) error {
	return l.mutate(ctx, tierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		if ts.tier.Counters() == ts.stored {
			return nil, nil, nil
		}
		t := ts.tier
		return &t, func() {}, nil
	}, nil)
}

// Reserve holds qty units under handleID. presaleOK tells the ledger that a
// presale code was already verified upstream.
func (l *Ledger) Reserve(ctx context.Context, tierID, handleID string, qty int, presaleOK bool, commit Commit) (Handle, error) {
	if qty <= 0 || handleID == "" {
		return Handle{}, models.ErrInvalidInput
	}
	handle := Handle{ID: handleID, TierID: tierID, Quantity: qty}

	err := l.mutate(ctx, tierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		if held, ok := ts.handles[handleID]; ok {
			if held != qty {
				return nil, nil, fmt.Errorf("handle %s already used: %w", handleID, models.ErrInvalidInput)
			}
			return nil, nil, nil
		}

		t := ts.tier
		if !t.IsActive {
			return nil, nil, models.ErrTierInactive
		}
		if !t.InSalesWindow(l.clock.Now()) {
			return nil, nil, models.ErrSalesWindowClosed
		}
		if t.IsPresaleOnly && !presaleOK {
			return nil, nil, models.ErrPresaleCodeRequired
		}
		if t.SoldQuantity+t.ReservedQuantity+qty > t.TotalQuantity {
			return nil, nil, models.ErrInsufficientCapacity
		}

		t.ReservedQuantity += qty
		return &t, func() { ts.handles[handleID] = qty }, nil
	}, commit)
	if err != nil {
		return Handle{}, err
	}
	return handle, nil
}

// Confirm moves a held handle's units from reserved to sold and forgets the
// handle. An unknown handle was released, confirmed or never held here; the
// reservation record, not the ledger, makes confirmation idempotent.
func (l *Ledger) Confirm(ctx context.Context, handle Handle, commit Commit) error {
	return l.mutate(ctx, handle.TierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		qty, ok := ts.handles[handle.ID]
		if !ok {
			return nil, nil, models.ErrHandleExpired
		}
		t := ts.tier
		t.ReservedQuantity -= qty
		t.SoldQuantity += qty
		return &t, func() { delete(ts.handles, handle.ID) }, nil
	}, commit)
}

// Release returns a held handle's units. Releasing an unknown handle is a
// no-op.
func (l *Ledger) Release(ctx context.Context, handle Handle, commit Commit) error {
	return l.mutate(ctx, handle.TierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		qty, ok := ts.handles[handle.ID]
		if !ok {
			return nil, nil, nil
		}
		t := ts.tier
		t.ReservedQuantity -= qty
		return &t, func() { delete(ts.handles, handle.ID) }, nil
	}, commit)
}

// Adopt starts tracking a hold that another ledger over the same store
// placed. Its units are already in the stored reserved counter, so the tier
// is reloaded instead of incremented. Adopting a tracked handle is a no-op.
func (l *Ledger) Adopt(ctx context.Context, handle Handle) error {
	if l.store == nil {
		return fmt.Errorf("adopt %s: %w", handle.ID, models.ErrHandleExpired)
	}
	ts, err := l.state(handle.TierID)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := ts.handles[handle.ID]; ok {
		return nil
	}
	if err := l.reload(ctx, ts); err != nil {
		return err
	}
	if handle.Quantity <= 0 || ts.tier.ReservedQuantity < handle.Quantity {
		return fmt.Errorf("adopt %s: %w", handle.ID, models.ErrHandleExpired)
	}
	ts.handles[handle.ID] = handle.Quantity
	l.logger.LogLedger("ADOPT", handle.TierID, fmt.Sprintf("handle=%s qty=%d", handle.ID, handle.Quantity))
	return nil
}

// Forget drops a handle whose reservation was settled by another writer.
// The counters are left alone: that writer already moved them.
func (l *Ledger) Forget(tierID, handleID string) {
	ts, err := l.state(tierID)
	if err != nil {
		return
	}
	ts.mu.Lock()
	delete(ts.handles, handleID)
	ts.mu.Unlock()
}

// ReverseSale gives qty sold units back to the pool.
func (l *Ledger) ReverseSale(ctx context.Context, tierID string, qty int, commit Commit) error {
	if qty <= 0 {
		return models.ErrInvalidInput
	}
	return l.mutate(ctx, tierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		t := ts.tier
		if qty > t.SoldQuantity {
			return nil, nil, models.ErrOverRefund
		}
		t.SoldQuantity -= qty
		return &t, func() {}, nil
	}, commit)
}

// Reconfigure changes a tier's rules (capacity, window, presale, activity).
// mutate cannot alter the counters; a capacity below sold+reserved is refused.
func (l *Ledger) Reconfigure(ctx context.Context, tierID string, mutate func(t *models.TicketTier) error, commit func(ctx context.Context, t models.TicketTier) error) (models.TicketTier, error) {
	var result models.TicketTier
	err := l.mutate(ctx, tierID, func(ts *tierState) (*models.TicketTier, func(), error) {
		t := ts.tier
		if err := mutate(&t); err != nil {
			return nil, nil, err
		}
		t.ID = ts.tier.ID
		t.EventID = ts.tier.EventID
		t.SoldQuantity = ts.tier.SoldQuantity
		t.ReservedQuantity = ts.tier.ReservedQuantity
		if t.TotalQuantity < t.SoldQuantity+t.ReservedQuantity {
			return nil, nil, models.ErrCapacityBelowCommitted
		}
		result = t
		return &t, func() {}, nil
	}, func(ctx context.Context) error {
		if commit == nil {
			return nil
		}
		return commit(ctx, result)
	})
	if err != nil {
		return models.TicketTier{}, err
	}
	return result, nil
}

// Available returns a snapshot of sellable units. It never goes negative.
func (l *Ledger) Available(tierID string) (int, error) {
	ts, err := l.state(tierID)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return available(ts.tier), nil
}

func (l *Ledger) Snapshot(tierID string) (models.TierSnapshot, error) {
	ts, err := l.state(tierID)
	if err != nil {
		return models.TierSnapshot{}, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return snapshot(ts.tier), nil
}

// Tier returns a copy of the tier as the ledger currently sees it.
func (l *Ledger) Tier(tierID string) (models.TicketTier, error) {
	ts, err := l.state(tierID)
	if err != nil {
		return models.TicketTier{}, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.tier, nil
}

// TiersForEvent returns copies of every registered tier of the event, by id.
func (l *Ledger) TiersForEvent(eventID string) []models.TicketTier {
	l.mu.RLock()
	states := make([]*tierState, 0)
	for _, ts := range l.tiers {
		states = append(states, ts)
	}
	l.mu.RUnlock()

	var tiers []models.TicketTier
	for _, ts := range states {
		ts.mu.Lock()
		if ts.tier.EventID == eventID {
			tiers = append(tiers, ts.tier)
		}
		ts.mu.Unlock()
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers
}

// EventSoldOut reports whether every active tier of the event is fully sold.
// Held units do not count: they may still come back.
func (l *Ledger) EventSoldOut(eventID string) bool {
	tiers := l.TiersForEvent(eventID)
	active := 0
	for _, t := range tiers {
		if !t.IsActive {
			continue
		}
		active++
		if t.SoldQuantity < t.TotalQuantity {
			return false
		}
	}
	return active > 0
}

// HandleHeld reports whether this ledger tracks handleID as held.
func (l *Ledger) HandleHeld(tierID, handleID string) bool {
	ts, err := l.state(tierID)
	if err != nil {
		return false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.handles[handleID]
	return ok
}

func (l *Ledger) state(tierID string) (*tierState, error) {
	l.mu.RLock()
	ts, ok := l.tiers[tierID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tier %s: %w", tierID, models.ErrNotFound)
	}
	return ts, nil
}

// mutate runs plan under the tier lock. plan returns the tier with its new
// counters and an apply func for handle bookkeeping; a nil tier means no-op.
// When another ledger moved the stored counters first, the tier is reloaded
// and plan runs again.
func (l *Ledger) mutate(ctx context.Context, tierID string, plan func(ts *tierState) (*models.TicketTier, func(), error), commit Commit) error {
	ts, err := l.state(tierID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	reloaded := false
	for attempt := uint64(0); ; attempt++ {
		next, apply, err := plan(ts)
		if err != nil {
			if l.store == nil || reloaded || !mayBeStale(err) {
				return err
			}
			// Another ledger may have freed units or changed the tier.
			reloaded = true
			if err := l.reload(ctx, ts); err != nil {
				return fmt.Errorf("reload tier %s: %w", tierID, err)
			}
			continue
		}
		if next == nil {
			return nil
		}
		if err := checkInvariant(next.TotalQuantity, next.SoldQuantity, next.ReservedQuantity); err != nil {
			return fmt.Errorf("tier %s: %w", tierID, err)
		}

		err = l.persist(ctx, ts.stored, *next, commit)
		if errors.Is(err, models.ErrCounterConflict) && attempt < l.maxRetries {
			monitoring.TrackLedgerRetry()
			reloaded = true
			if err := l.reload(ctx, ts); err != nil {
				return fmt.Errorf("reload tier %s: %w", tierID, err)
			}
			continue
		}
		if err != nil {
			return err
		}

		next.UpdatedAt = l.clock.Now()
		ts.tier = *next
		ts.stored = next.Counters()
		apply()

		monitoring.SetTierCounters(next.EventID, tierID, available(*next), next.ReservedQuantity)
		l.logger.LogLedger("COMMIT", tierID, fmt.Sprintf("total=%d sold=%d reserved=%d", next.TotalQuantity, next.SoldQuantity, next.ReservedQuantity))
		return nil
	}
}

// reload replaces the tier with the stored row. Handles held here are
// already counted in the stored reserved quantity.
func (l *Ledger) reload(ctx context.Context, ts *tierState) error {
	fresh, err := l.store.GetTier(ctx, ts.tier.ID)
	if err != nil {
		return err
	}
	ts.tier = *fresh
	ts.stored = fresh.Counters()
	monitoring.SetTierCounters(fresh.EventID, fresh.ID, available(*fresh), fresh.ReservedQuantity)
	l.logger.LogLedger("RELOAD", fresh.ID, fmt.Sprintf("total=%d sold=%d reserved=%d", fresh.TotalQuantity, fresh.SoldQuantity, fresh.ReservedQuantity))
	return nil
}

func (l *Ledger) persist(ctx context.Context, from models.TierCounters, t models.TicketTier, commit Commit) error {
	if l.store == nil && commit == nil {
		return nil
	}

	run := func(ctx context.Context) error {
		if l.store != nil {
			if err := l.store.SaveCounters(ctx, t.ID, from, t.Counters()); err != nil {
				return err
			}
		}
		if commit != nil {
			return commit(ctx)
		}
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			monitoring.TrackLedgerRetry()
		}
		var err error
		if l.tx != nil {
			err = l.tx.WithTx(ctx, run)
		} else {
			err = run(ctx)
		}
		if err != nil && !database.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = l.retryBase
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, l.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if database.IsRetryable(err) {
			l.logger.Warn("LEDGER", fmt.Sprintf("tier %s: gave up after %d attempts: %v", t.ID, attempt, err))
		}
		return err
	}
	return nil
}

func available(t models.TicketTier) int {
	a := t.TotalQuantity - t.SoldQuantity - t.ReservedQuantity
	if a < 0 {
		return 0
	}
	return a
}

func snapshot(t models.TicketTier) models.TierSnapshot {
	s := models.TierSnapshot{
		TierID:    t.ID,
		EventID:   t.EventID,
		Total:     t.TotalQuantity,
		Sold:      t.SoldQuantity,
		Reserved:  t.ReservedQuantity,
		Available: available(t),
		Active:    t.IsActive,
	}
	if t.TotalQuantity > 0 {
		s.SoldPercent = float64(t.SoldQuantity+t.ReservedQuantity) / float64(t.TotalQuantity)
	}
	return s
}

// mayBeStale reports whether a refusal could come from counters or rules
// another ledger has since changed.
func mayBeStale(err error) bool {
	for _, target := range []error{
		models.ErrInsufficientCapacity, models.ErrOverRefund,
		models.ErrCapacityBelowCommitted, models.ErrTierInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func checkInvariant(total, sold, reserved int) error {
	if sold < 0 || reserved < 0 || total < 0 || sold+reserved > total {
		return fmt.Errorf("counters total=%d sold=%d reserved=%d: %w", total, sold, reserved, models.ErrInvalidTransition)
	}
	return nil
}
