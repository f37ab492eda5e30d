package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"localhost-events/internal/kafka"
	"localhost-events/internal/models"
)

// Mock implementations for the Sarama consumer-group interfaces.
type MockConsumerGroupSession struct {
	mock.Mock
}

func (m *MockConsumerGroupSession) Claims() map[string][]int32 {
	args := m.Called()
	return args.Get(0).(map[string][]int32)
}

func (m *MockConsumerGroupSession) MemberID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupSession) GenerationID() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) Commit() {
	m.Called()
}

func (m *MockConsumerGroupSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	m.Called(msg, metadata)
}

func (m *MockConsumerGroupSession) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

type MockConsumerGroupClaim struct {
	mock.Mock
}

func (m *MockConsumerGroupClaim) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupClaim) Partition() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupClaim) InitialOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) HighWaterMarkOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) Messages() <-chan *sarama.ConsumerMessage {
	args := m.Called()
	return args.Get(0).(chan *sarama.ConsumerMessage)
}

func newSession() *MockConsumerGroupSession {
	session := &MockConsumerGroupSession{}
	session.On("Context").Return(context.Background())
	session.On("MarkMessage", mock.Anything, "").Return()
	return session
}

func claimWith(messages ...*sarama.ConsumerMessage) *MockConsumerGroupClaim {
	msgChan := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgChan <- msg
	}
	close(msgChan)

	claim := &MockConsumerGroupClaim{}
	claim.On("Messages").Return(msgChan)
	return claim
}

func confirmationMessage(t *testing.T, ref string) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(&models.SettlementRequest{
		PaymentRef:      ref,
		ConfirmedPaid:   true,
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
		InventoryUnitID: "unit_1",
		EventID:         "evt_1",
		AmountPaidMinor: 5000,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.ConfirmationTopic, Value: data}
}

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	session := newSession()

	var handled []string
	handler := &kafka.ConfirmationHandler{
		Handler: func(req *models.SettlementRequest) error {
			handled = append(handled, req.PaymentRef)
			return nil
		},
	}

	claim := claimWith(confirmationMessage(t, "cs_1"), confirmationMessage(t, "cs_2"))
	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []string{"cs_1", "cs_2"}, handled)
	session.AssertNumberOfCalls(t, "MarkMessage", 2)
}

func TestConsumeClaimMarksMalformedMessages(t *testing.T) {
	session := newSession()

	handler := &kafka.ConfirmationHandler{
		Handler: func(req *models.SettlementRequest) error {
			t.Fatal("handler should not run for malformed messages")
			return nil
		},
	}

	claim := claimWith(&sarama.ConsumerMessage{Topic: kafka.ConfirmationTopic, Value: []byte("not json")})
	require.NoError(t, handler.ConsumeClaim(session, claim))

	// Garbage is marked consumed; redelivering it cannot help.
	session.AssertNumberOfCalls(t, "MarkMessage", 1)
}

func TestConsumeClaimRetriesTransientFailures(t *testing.T) {
	session := newSession()

	// An outage spanning the first two attempts must not lose the
	// confirmation: it is retried in place and marked once it lands.
	attempts := 0
	handler := &kafka.ConfirmationHandler{
		Handler: func(req *models.SettlementRequest) error {
			attempts++
			if attempts < 3 {
				return errors.New("store unavailable")
			}
			return nil
		},
		RetryBackoff: time.Millisecond,
	}

	claim := claimWith(confirmationMessage(t, "cs_outage"))
	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, 3, attempts)
	session.AssertNumberOfCalls(t, "MarkMessage", 1)
}

func TestConsumeClaimEndsSessionOnPersistentFailure(t *testing.T) {
	session := newSession()

	attempts := 0
	handler := &kafka.ConfirmationHandler{
		Handler: func(req *models.SettlementRequest) error {
			attempts++
			return errors.New("store unavailable")
		},
		RetryBackoff: time.Millisecond,
	}

	// Two messages in one partition. The second must never be marked:
	// offset commits acknowledge the highest marked offset, and marking
	// it would commit past the failed first message and lose it.
	claim := claimWith(confirmationMessage(t, "cs_stuck"), confirmationMessage(t, "cs_after"))
	err := handler.ConsumeClaim(session, claim)
	require.Error(t, err)

	assert.Equal(t, 5, attempts)
	session.AssertNumberOfCalls(t, "MarkMessage", 0)
}
