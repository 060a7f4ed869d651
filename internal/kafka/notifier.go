package kafka

import (
	"context"

	"ms-inventory/internal/config"
	"ms-inventory/internal/models"
)

// Notifier turns engine notifications into Kafka events for the
// notification collaborator.
type Notifier struct {
	Producer *Producer
	Topics   config.TopicConfig
}

func NewNotifier(p *Producer, topics config.TopicConfig) *Notifier {
	return &Notifier{Producer: p, Topics: topics}
}

func (n *Notifier) NotifyOffer(ctx context.Context, entry models.WaitlistEntry, r models.Reservation) error {
	return n.Producer.Publish(ctx, n.Topics.WaitlistOffer, r.ID, WaitlistOfferEvent{
		EntryID:       entry.ID,
		EventID:       r.EventID,
		TierID:        r.TierID,
		BuyerID:       entry.BuyerID,
		Quantity:      r.Quantity,
		ReservationID: r.ID,
		Amount:        r.Amount,
		ExpiresAt:     r.ExpiresAt,
	})
}

func (n *Notifier) NotifyConfirmed(ctx context.Context, r models.Reservation, tickets []models.Ticket) error {
	ev := ReservationConfirmedEvent{
		ReservationID: r.ID,
		EventID:       r.EventID,
		TierID:        r.TierID,
		BuyerID:       r.BuyerID,
		Quantity:      r.Quantity,
		Amount:        r.Amount,
	}
	for _, t := range tickets {
		ev.TicketIDs = append(ev.TicketIDs, t.ID)
		ev.TicketNumbers = append(ev.TicketNumbers, t.TicketNumber)
	}
	return n.Producer.Publish(ctx, n.Topics.ReservationConfirm, r.ID, ev)
}

func (n *Notifier) NotifyReleased(ctx context.Context, r models.Reservation) error {
	return n.Producer.Publish(ctx, n.Topics.ReservationReleased, r.ID, ReservationReleasedEvent{
		ReservationID:   r.ID,
		EventID:         r.EventID,
		TierID:          r.TierID,
		BuyerID:         r.BuyerID,
		Quantity:        r.Quantity,
		State:           string(r.State),
		WaitlistEntryID: r.WaitlistEntryID,
	})
}

func (n *Notifier) NotifyRefunded(ctx context.Context, t models.Ticket) error {
	return n.Producer.Publish(ctx, n.Topics.TicketRefunded, t.ReservationID, TicketRefundedEvent{
		TicketID:      t.ID,
		TicketNumber:  t.TicketNumber,
		ReservationID: t.ReservationID,
		EventID:       t.EventID,
		TierID:        t.TierID,
		BuyerID:       t.BuyerID,
		Amount:        t.PurchasePrice,
	})
}
