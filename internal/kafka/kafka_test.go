package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"ms-inventory/internal/config"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTopics = config.TopicConfig{
	PaymentSucceeded:    "payment.succeeded",
	PaymentFailed:       "payment.failed",
	WaitlistOffer:       "inventory.waitlist.offer",
	ReservationConfirm:  "inventory.reservation.confirmed",
	ReservationReleased: "inventory.reservation.released",
	TicketRefunded:      "inventory.ticket.refunded",
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

// sliceReader serves queued messages, then blocks until ctx is done.
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	drained   chan struct{}
}

func newSliceReader(msgs ...kafka.Message) *sliceReader {
	return &sliceReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *sliceReader) Close() error { return nil }

type MockPaymentHandler struct {
	mock.Mock
}

func (m *MockPaymentHandler) ConfirmPurchase(ctx context.Context, id string) ([]models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockPaymentHandler) ExpirePurchase(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func paymentMessage(t *testing.T, topic, reservationID string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(PaymentResult{
		ReservationID: reservationID,
		PaymentID:     "pay-" + reservationID,
		Amount:        decimal.RequireFromString("50.00"),
		OccurredAt:    time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC).Unix(),
	})
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Key: []byte(reservationID), Value: value}
}

func TestNotifier_PublishesToConfiguredTopics(t *testing.T) {
	w := &captureWriter{}
	n := NewNotifier(&Producer{Writer: w, Logger: logger.NewDiscardLogger()}, testTopics)
	ctx := context.Background()

	r := models.Reservation{
		ID: "res-1", EventID: "evt-1", TierID: "tier-1", BuyerID: "buyer-1",
		Quantity: 2, Amount: decimal.RequireFromString("100.00"), State: models.ReservationExpired,
	}
	tickets := []models.Ticket{
		{ID: "t1", TicketNumber: "TKT-1"},
		{ID: "t2", TicketNumber: "TKT-2"},
	}

	require.NoError(t, n.NotifyConfirmed(ctx, r, tickets))
	require.NoError(t, n.NotifyReleased(ctx, r))
	require.NoError(t, n.NotifyOffer(ctx, models.WaitlistEntry{ID: "wl-1", BuyerID: "buyer-2"}, r))
	require.NoError(t, n.NotifyRefunded(ctx, models.Ticket{ID: "t1", ReservationID: "res-1", PurchasePrice: decimal.RequireFromString("50.00")}))

	require.Len(t, w.msgs, 4)
	assert.Equal(t, testTopics.ReservationConfirm, w.msgs[0].Topic)
	assert.Equal(t, testTopics.ReservationReleased, w.msgs[1].Topic)
	assert.Equal(t, testTopics.WaitlistOffer, w.msgs[2].Topic)
	assert.Equal(t, testTopics.TicketRefunded, w.msgs[3].Topic)
	for _, m := range w.msgs {
		assert.Equal(t, "res-1", string(m.Key))
	}

	var confirmed ReservationConfirmedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &confirmed))
	assert.Equal(t, []string{"t1", "t2"}, confirmed.TicketIDs)
	assert.Equal(t, []string{"TKT-1", "TKT-2"}, confirmed.TicketNumbers)

	var released ReservationReleasedEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &released))
	assert.Equal(t, "EXPIRED", released.State)

	var offer WaitlistOfferEvent
	require.NoError(t, json.Unmarshal(w.msgs[2].Value, &offer))
	assert.Equal(t, "buyer-2", offer.BuyerID)
	assert.Equal(t, "wl-1", offer.EntryID)
}

func TestProducer_WriteErrorIsReturned(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := &Producer{Writer: w, Logger: logger.NewDiscardLogger()}

	err := p.Publish(context.Background(), "topic", "key", map[string]string{"a": "b"})
	assert.EqualError(t, err, "broker down")
}

func TestPaymentConsumer_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("success confirms", func(t *testing.T) {
		h := new(MockPaymentHandler)
		h.On("ConfirmPurchase", ctx, "res-1").Return([]models.Ticket{{ID: "t1"}}, nil).Once()
		c := &PaymentConsumer{Handler: h, Topics: testTopics, Logger: logger.NewDiscardLogger()}

		require.NoError(t, c.Handle(ctx, paymentMessage(t, testTopics.PaymentSucceeded, "res-1")))
		h.AssertExpectations(t)
	})

	t.Run("late capture is swallowed", func(t *testing.T) {
		h := new(MockPaymentHandler)
		h.On("ConfirmPurchase", ctx, "res-1").Return(nil, models.ErrHandleExpired).Once()
		c := &PaymentConsumer{Handler: h, Topics: testTopics, Logger: logger.NewDiscardLogger()}

		assert.NoError(t, c.Handle(ctx, paymentMessage(t, testTopics.PaymentSucceeded, "res-1")))
	})

	t.Run("failure expires", func(t *testing.T) {
		h := new(MockPaymentHandler)
		h.On("ExpirePurchase", ctx, "res-2").Return(nil).Once()
		c := &PaymentConsumer{Handler: h, Topics: testTopics, Logger: logger.NewDiscardLogger()}

		require.NoError(t, c.Handle(ctx, paymentMessage(t, testTopics.PaymentFailed, "res-2")))
		h.AssertExpectations(t)
	})

	t.Run("failure after confirm is ignored", func(t *testing.T) {
		h := new(MockPaymentHandler)
		h.On("ExpirePurchase", ctx, "res-2").Return(models.ErrHandleConfirmed).Once()
		c := &PaymentConsumer{Handler: h, Topics: testTopics, Logger: logger.NewDiscardLogger()}

		assert.NoError(t, c.Handle(ctx, paymentMessage(t, testTopics.PaymentFailed, "res-2")))
	})

	t.Run("garbage payload", func(t *testing.T) {
		c := &PaymentConsumer{Handler: new(MockPaymentHandler), Topics: testTopics, Logger: logger.NewDiscardLogger()}

		err := c.Handle(ctx, kafka.Message{Topic: testTopics.PaymentSucceeded, Value: []byte("{")})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})
}

func TestPaymentConsumer_RunRetriesTransientAndCommits(t *testing.T) {
	h := new(MockPaymentHandler)
	h.On("ConfirmPurchase", mock.Anything, "res-1").Return(nil, io.ErrUnexpectedEOF).Once()
	h.On("ConfirmPurchase", mock.Anything, "res-1").Return([]models.Ticket{{ID: "t1"}}, nil).Once()
	h.On("ExpirePurchase", mock.Anything, "missing").Return(models.ErrNotFound).Once()

	reader := newSliceReader(
		paymentMessage(t, testTopics.PaymentSucceeded, "res-1"),
		paymentMessage(t, testTopics.PaymentFailed, "missing"),
	)
	c := &PaymentConsumer{Reader: reader, Handler: h, Topics: testTopics, Logger: logger.NewDiscardLogger(), MaxRetries: 3}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the reader")
	}
	cancel()
	require.NoError(t, <-done)

	h.AssertExpectations(t)
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Len(t, reader.committed, 2)
}

func TestTopicNames(t *testing.T) {
	names := TopicNames(testTopics)
	assert.Len(t, names, 6)
	assert.Contains(t, names, "payment.succeeded")
	assert.Contains(t, names, "inventory.ticket.refunded")
}
