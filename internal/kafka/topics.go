package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"ms-inventory/internal/config"
	"ms-inventory/internal/logger"

	"github.com/segmentio/kafka-go"
)

// TopicNames lists every topic the service reads or writes.
func TopicNames(t config.TopicConfig) []string {
	return []string{
		t.PaymentSucceeded,
		t.PaymentFailed,
		t.WaitlistOffer,
		t.ReservationConfirm,
		t.ReservationReleased,
		t.TicketRefunded,
	}
}

// EnsureTopicsExist creates missing topics through the cluster controller.
// A topic that cannot be created is logged and skipped.
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("TOPIC_CREATED", topic, "created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.LogKafka("TOPIC_EXISTS", topic, "already exists")
		default:
			log.LogKafka("TOPIC_FAILED", topic, err.Error())
		}
	}
	return nil
}
