package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-inventory/internal/config"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentHandler settles reservations once the payment outcome is known.
type PaymentHandler interface {
	ConfirmPurchase(ctx context.Context, reservationID string) ([]models.Ticket, error)
	ExpirePurchase(ctx context.Context, reservationID string) error
}

// PaymentConsumer applies payment outcomes to held reservations.
type PaymentConsumer struct {
	Reader     MessageReader
	Handler    PaymentHandler
	Topics     config.TopicConfig
	Logger     *logger.Logger
	MaxRetries uint64
}

func NewPaymentConsumer(brokers []string, groupID string, topics config.TopicConfig, h PaymentHandler, log *logger.Logger) *PaymentConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: []string{topics.PaymentSucceeded, topics.PaymentFailed},
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	return &PaymentConsumer{
		Reader:     reader,
		Handler:    h,
		Topics:     topics,
		Logger:     log,
		MaxRetries: 5,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed after a
// message is handled, or dropped as unprocessable.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	c.Logger.LogKafka("CONSUMER_START", c.Topics.PaymentSucceeded+","+c.Topics.PaymentFailed, "payment consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.LogKafka("DROPPED", msg.Topic, fmt.Sprintf("offset=%d: %v", msg.Offset, err))
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.LogKafka("COMMIT_FAILED", msg.Topic, err.Error())
		}
	}
}

func (c *PaymentConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	op := func() error {
		err := c.Handle(ctx, msg)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, c.MaxRetries), ctx)
	return backoff.Retry(op, policy)
}

// Handle applies a single payment outcome. Terminal domain outcomes are
// logged and swallowed; only infrastructure failures come back as errors.
func (c *PaymentConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var res PaymentResult
	if err := json.Unmarshal(msg.Value, &res); err != nil {
		return fmt.Errorf("%w: decode payment result: %v", models.ErrInvalidInput, err)
	}
	if res.ReservationID == "" {
		return fmt.Errorf("%w: payment result without reservation id", models.ErrInvalidInput)
	}
	at := utils.UnixTimeToTime(res.OccurredAt)

	switch msg.Topic {
	case c.Topics.PaymentSucceeded:
		tickets, err := c.Handler.ConfirmPurchase(ctx, res.ReservationID)
		switch {
		case err == nil:
			c.Logger.LogKafka("PAYMENT_SUCCEEDED", msg.Topic,
				fmt.Sprintf("reservation=%s payment=%s tickets=%d at=%s", res.ReservationID, res.PaymentID, len(tickets), at.Format(time.RFC3339)))
			return nil
		case errors.Is(err, models.ErrHandleExpired), errors.Is(err, models.ErrEventNotOnSale):
			// Money was captured for a hold that cannot become tickets; payments must refund it.
			c.Logger.LogSecurity("PAYMENT_UNFULFILLED",
				fmt.Sprintf("reservation=%s payment=%s amount=%s needs refund: %v", res.ReservationID, res.PaymentID, res.Amount.String(), err))
			return nil
		default:
			return err
		}

	case c.Topics.PaymentFailed:
		err := c.Handler.ExpirePurchase(ctx, res.ReservationID)
		if err == nil || errors.Is(err, models.ErrHandleConfirmed) {
			c.Logger.LogKafka("PAYMENT_FAILED", msg.Topic,
				fmt.Sprintf("reservation=%s reason=%s", res.ReservationID, res.Reason))
			return nil
		}
		return err

	default:
		return fmt.Errorf("%w: unexpected topic %s", models.ErrInvalidInput, msg.Topic)
	}
}

func (c *PaymentConsumer) Close() error {
	return c.Reader.Close()
}

// isTransient reports whether err is worth retrying. Domain sentinels are
// final answers.
func isTransient(err error) bool {
	if models.IsRecoverable(err) {
		return false
	}
	for _, sentinel := range []error{
		models.ErrNotFound,
		models.ErrInvalidInput,
		models.ErrHandleExpired,
		models.ErrHandleConfirmed,
		models.ErrInvalidTransition,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}
