package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"localhost-events/internal/models"
)

// ConfirmationTopic carries asynchronous payment confirmations. Delivery
// is at-least-once; the settlement engine's idempotency fence absorbs the
// duplicates that redelivery produces.
const ConfirmationTopic = "payment-confirmations"

type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
}

func NewConfirmationConsumer(brokers []string, groupID string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		consumer: consumer,
		topics:   []string{ConfirmationTopic},
	}, nil
}

// ConsumeConfirmations blocks, feeding every decoded confirmation to
// handler until ctx is cancelled.
func (c *Consumer) ConsumeConfirmations(ctx context.Context, handler func(*models.SettlementRequest) error) error {
	consumerHandler := &ConfirmationHandler{Handler: handler}

	for {
		// Consume returns when the session ends: a rebalance, ctx
		// cancellation, or the handler giving up on a message. Rejoining
		// resumes at the last committed offset, so nothing past an
		// unmarked message has been acknowledged.
		if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
			log.Printf("Consumer session ended: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

const (
	// maxHandlerRetries bounds the inline retries for one confirmation
	// before the session is abandoned and rejoined.
	maxHandlerRetries   = 5
	defaultRetryBackoff = time.Second
)

// ConfirmationHandler is exported so tests can drive ConsumeClaim directly.
type ConfirmationHandler struct {
	Handler func(*models.SettlementRequest) error
	// RetryBackoff is the initial delay between attempts for a failing
	// confirmation. Zero selects the default.
	RetryBackoff time.Duration
}

func (h *ConfirmationHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *ConfirmationHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ConfirmationHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var req models.SettlementRequest
		if err := json.Unmarshal(message.Value, &req); err != nil {
			log.Printf("Failed to unmarshal confirmation: %v", err)
			session.MarkMessage(message, "")
			continue
		}

		// Offset commits acknowledge the highest marked message per
		// partition, so a failed confirmation must hold up marking
		// entirely: retry it here and, if it keeps failing, end the
		// session before anything later in the partition is marked past
		// it. The wrapper in main returns an error only for transient
		// storage failures.
		if err := h.handleWithRetry(session.Context(), &req); err != nil {
			return fmt.Errorf("giving up on confirmation %s: %w", req.PaymentRef, err)
		}

		session.MarkMessage(message, "")
	}

	return nil
}

func (h *ConfirmationHandler) handleWithRetry(ctx context.Context, req *models.SettlementRequest) error {
	backoff := h.RetryBackoff
	if backoff == 0 {
		backoff = defaultRetryBackoff
	}

	var err error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if err = h.Handler(req); err == nil {
			return nil
		}
		log.Printf("Failed to handle confirmation %s (attempt %d/%d): %v", req.PaymentRef, attempt, maxHandlerRetries, err)
		if attempt == maxHandlerRetries {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
