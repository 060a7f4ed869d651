// Package refund reverses confirmed sales one ticket at a time.
package refund

import (
	"context"
	"fmt"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/monitoring"
)

type TicketDBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.TicketStatus, at time.Time) (bool, error)
	AddTicketCount(ctx context.Context, eventID, tierID string, day time.Time, delta int) error
}

type EventDBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	AddAttendees(ctx context.Context, id string, delta int) error
	TransitionStatus(ctx context.Context, id string, to models.EventStatus, now time.Time, from ...models.EventStatus) (bool, error)
}

type TierLedger interface {
	ReverseSale(ctx context.Context, tierID string, qty int, commit ledger.Commit) error
}

type Waitlist interface {
	OnCapacityFreed(ctx context.Context, tierID string, freed int) error
}

type Notifier interface {
	NotifyRefunded(ctx context.Context, t models.Ticket) error
}

// Policy decides whether a ticket of event may be refunded at now.
type Policy interface {
	Refundable(event models.Event, ticket models.Ticket, now time.Time) error
}

// CutoffPolicy allows refunds until Cutoff before the event starts. Tickets
// of cancelled events are always refundable; completed events never are.
type CutoffPolicy struct {
	Cutoff time.Duration
}

func (p CutoffPolicy) Refundable(event models.Event, _ models.Ticket, now time.Time) error {
	switch event.Status {
	case models.EventStatusCancelled:
		return nil
	case models.EventStatusCompleted:
		return fmt.Errorf("event %s is completed: %w", event.ID, models.ErrNotRefundable)
	}
	if !now.Before(event.StartDate.Add(-p.Cutoff)) {
		return fmt.Errorf("refund window for event %s closed: %w", event.ID, models.ErrNotRefundable)
	}
	return nil
}

type Processor struct {
	Tickets  TicketDBLayer
	Events   EventDBLayer
	Ledger   TierLedger
	Waitlist Waitlist
	Notifier Notifier
	Policy   Policy
	Clock    clock.Clock
	Logger   *logger.Logger
}

func NewProcessor(tickets TicketDBLayer, events EventDBLayer, l TierLedger, wl Waitlist, notifier Notifier,
	policy Policy, clk clock.Clock, log *logger.Logger) *Processor {
	return &Processor{
		Tickets:  tickets,
		Events:   events,
		Ledger:   l,
		Waitlist: wl,
		Notifier: notifier,
		Policy:   policy,
		Clock:    clk,
		Logger:   log,
	}
}

// Refund marks the ticket REFUNDED and gives its unit back to the tier. The
// ticket status, the sold counter, the attendee count and the daily count
// change together or not at all.
func (p *Processor) Refund(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return p.refund(ctx, ticketID, "")
}

// RefundAs refunds only if buyerID owns the ticket.
func (p *Processor) RefundAs(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error) {
	return p.refund(ctx, ticketID, buyerID)
}

func (p *Processor) refund(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error) {
	t, err := p.Tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if buyerID != "" && t.BuyerID != buyerID {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrNotFound)
	}
	if err := statusError(t.Status); err != nil {
		return nil, err
	}
	event, err := p.Events.GetEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	now := p.Clock.Now()
	if err := p.Policy.Refundable(*event, *t, now); err != nil {
		return nil, err
	}

	err = p.Ledger.ReverseSale(ctx, t.TierID, 1, func(ctx context.Context) error {
		ok, err := p.Tickets.CompareAndSetStatus(ctx, t.ID, models.TicketValid, models.TicketRefunded, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another refund or a check-in.
			current, err := p.Tickets.GetTicketByID(ctx, t.ID)
			if err != nil {
				return err
			}
			if serr := statusError(current.Status); serr != nil {
				return serr
			}
			return models.ErrInvalidTransition
		}
		if err := p.Events.AddAttendees(ctx, t.EventID, -1); err != nil {
			return fmt.Errorf("remove attendee: %w", err)
		}
		if _, err := p.Events.TransitionStatus(ctx, t.EventID, models.EventStatusPublished, now, models.EventStatusSoldOut); err != nil {
			return fmt.Errorf("reopen event: %w", err)
		}
		return p.Tickets.AddTicketCount(ctx, t.EventID, t.TierID, t.PurchasedAt, -1)
	})
	if err != nil {
		return nil, err
	}

	t.Status = models.TicketRefunded
	t.RefundedAt = &now
	monitoring.TrackTicketRefunded(t.EventID)
	p.Logger.LogRefund(t.ID, fmt.Sprintf("ticket %s of tier %s refunded to buyer %s (%s)",
		t.TicketNumber, t.TierID, t.BuyerID, t.PurchasePrice.String()))

	if p.Waitlist != nil {
		if err := p.Waitlist.OnCapacityFreed(ctx, t.TierID, 1); err != nil {
			p.Logger.Error("WAITLIST", fmt.Sprintf("promotion after refund of %s failed: %v", t.ID, err))
		}
	}
	if p.Notifier != nil {
		if err := p.Notifier.NotifyRefunded(ctx, *t); err != nil {
			p.Logger.Warn("REFUND", fmt.Sprintf("refund notification for %s failed: %v", t.ID, err))
		}
	}
	return t, nil
}

func statusError(s models.TicketStatus) error {
	switch s {
	case models.TicketValid:
		return nil
	case models.TicketRefunded:
		return models.ErrAlreadyRefunded
	default:
		return fmt.Errorf("ticket is %s: %w", s, models.ErrNotRefundable)
	}
}
