package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"localhost-events/internal/logger"
	"localhost-events/internal/models"
	"localhost-events/internal/storage"
	"localhost-events/internal/utils"
)

var (
	// ErrPaymentNotCompleted: the payment source says the payment is not
	// finalized. Reflects upstream state; retrying the identical input
	// cannot change the outcome.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrInvalidReference: malformed or dangling identifiers. Permanent.
	ErrInvalidReference = errors.New("invalid transaction reference")
	// ErrSoldOut: the guarded decrement found no remaining capacity.
	// Terminal for this attempt; capacity does not come back.
	ErrSoldOut = errors.New("ticket sold out")
	// ErrStoreUnavailable: storage failed mid-flight. No partial state is
	// ever visible, so the caller may retry with backoff.
	ErrStoreUnavailable = errors.New("storage unavailable")
)

// Notifier delivers the purchase confirmation email. Failures are logged
// and dropped; a settled purchase is never undone by a notification problem.
type Notifier interface {
	SendPurchaseConfirmation(to, eventID, eventTitle string, amountMinor int64) error
}

// EventPublisher announces committed settlements to downstream consumers.
type EventPublisher interface {
	PublishSettlementEvent(event *models.SettlementEvent) error
}

// SettledRefCache is a best-effort marker for payment refs that already
// settled. It only ever short-circuits to a re-read of the order ledger;
// correctness comes from the uniqueness constraint in storage.
type SettledRefCache interface {
	MarkSettled(ctx context.Context, paymentRef string) error
	IsSettled(ctx context.Context, paymentRef string) (bool, error)
}

// SettlementService converts an external payment confirmation into exactly
// one order, one ticket and one inventory decrement, or rejects it. It
// holds no in-process locks: any number of instances may run concurrently,
// and the storage layer's transaction isolation is the only serialization
// point.
type SettlementService struct {
	store    storage.Store
	producer EventPublisher
	notifier Notifier
	cache    SettledRefCache
	log      *logger.Logger
}

func NewSettlementService(store storage.Store, producer EventPublisher, notifier Notifier, cache SettledRefCache, log *logger.Logger) *SettlementService {
	return &SettlementService{
		store:    store,
		producer: producer,
		notifier: notifier,
		cache:    cache,
		log:      log,
	}
}

// Settle is idempotent on req.PaymentRef: the first successful call mints
// the order and ticket, every later call returns OutcomeAlreadyProcessed
// without touching inventory. At-least-once delivery of confirmations
// (retried webhooks, a buyer refreshing the success page) is therefore safe.
func (s *SettlementService) Settle(ctx context.Context, req *models.SettlementRequest) (*models.SettlementResult, error) {
	s.log.LogSettlement("INIT", req.PaymentRef, fmt.Sprintf("Settling payment for unit %s", req.InventoryUnitID))

	if req.PaymentRef == "" || req.BuyerID == "" || req.InventoryUnitID == "" || req.EventID == "" {
		return nil, ErrInvalidReference
	}
	if req.AmountPaidMinor < 0 {
		return nil, ErrInvalidReference
	}
	if !req.ConfirmedPaid {
		s.log.LogSettlement("REJECT", req.PaymentRef, "Payment source reports payment not completed")
		return nil, ErrPaymentNotCompleted
	}

	// Fast path for replays. A cache miss or cache failure costs nothing
	// but the storage lookups below.
	if s.cache != nil {
		if settled, err := s.cache.IsSettled(ctx, req.PaymentRef); err == nil && settled {
			if order, err := s.store.GetOrderByPaymentRef(ctx, req.PaymentRef); err == nil && order != nil {
				s.log.LogSettlement("REPLAY", req.PaymentRef, "Already settled (cache hit)")
				return &models.SettlementResult{Outcome: models.OutcomeAlreadyProcessed, Order: order}, nil
			}
		}
	}

	// Outer idempotency check. The transaction re-checks under isolation;
	// this one just spares duplicate deliveries a transaction.
	existing, err := s.store.GetOrderByPaymentRef(ctx, req.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		s.log.LogSettlement("REPLAY", req.PaymentRef, "Already settled, returning existing order")
		return &models.SettlementResult{Outcome: models.OutcomeAlreadyProcessed, Order: existing}, nil
	}

	unit, event, err := s.resolveReferences(ctx, req)
	if err != nil {
		return nil, err
	}

	var result *models.SettlementResult
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		return s.settleInTx(txCtx, req, &result)
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicatePaymentRef) {
			// A concurrent settlement won the race on the uniqueness
			// constraint. The duplicate error fires only after the winner
			// commits, so its order is visible to a read outside the
			// rolled-back transaction.
			winner, lookErr := s.store.GetOrderByPaymentRef(ctx, req.PaymentRef)
			if lookErr == nil && winner != nil {
				s.log.LogSettlement("REPLAY", req.PaymentRef, "Lost the insert race, returning winner's order")
				return &models.SettlementResult{Outcome: models.OutcomeAlreadyProcessed, Order: winner}, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if errors.Is(err, ErrSoldOut) {
			s.log.LogSettlement("SOLD_OUT", req.PaymentRef, fmt.Sprintf("No capacity left for unit %s", unit.UnitID))
			return nil, ErrSoldOut
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		s.log.Error("SETTLEMENT", fmt.Sprintf("Transaction failed for payment %s: %v", req.PaymentRef, err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if result.Outcome == models.OutcomeSettled {
		s.log.LogSettlement("SETTLED", req.PaymentRef, fmt.Sprintf("Order %s and ticket %s minted", result.Order.OrderID, result.Ticket.TicketID))
		s.afterSettled(ctx, req, event, result)
	}
	return result, nil
}

// settleInTx is the atomic core. Ordering matters: the order insert is the
// idempotency fence, the guarded decrement is the capacity fence, and the
// ticket mint comes last so a ticket can never exist without both.
func (s *SettlementService) settleInTx(txCtx context.Context, req *models.SettlementRequest, result **models.SettlementResult) error {
	existing, err := s.store.GetOrderByPaymentRef(txCtx, req.PaymentRef)
	if err != nil {
		return err
	}
	if existing != nil {
		*result = &models.SettlementResult{Outcome: models.OutcomeAlreadyProcessed, Order: existing}
		return nil
	}

	now := time.Now()
	if err := s.store.UpsertUser(txCtx, &models.User{
		UserID:    req.BuyerID,
		Email:     req.BuyerEmail,
		Name:      req.BuyerName,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	order := &models.Order{
		OrderID:            utils.GenerateOrderID(),
		BuyerID:            req.BuyerID,
		Status:             models.OrderStatusPaid,
		TotalAmountMinor:   req.AmountPaidMinor,
		ExternalPaymentRef: req.PaymentRef,
		CreatedAt:          now,
	}
	if err := s.store.CreateOrder(txCtx, order); err != nil {
		// On a duplicate key the winning insert has committed, but this
		// transaction's snapshot predates that commit and cannot see the
		// row. Abort; Settle re-reads the winner in a fresh read.
		return err
	}

	ok, err := s.store.DecrementCapacity(txCtx, req.InventoryUnitID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSoldOut
	}

	token, err := utils.GenerateRedemptionToken()
	if err != nil {
		return err
	}
	ticket := &models.Ticket{
		TicketID:        utils.GenerateTicketID(),
		OrderID:         order.OrderID,
		InventoryUnitID: req.InventoryUnitID,
		EventID:         req.EventID,
		Status:          models.TicketStatusValid,
		RedemptionToken: token,
		CreatedAt:       now,
	}
	if err := s.store.CreateTicket(txCtx, ticket); err != nil {
		return err
	}

	*result = &models.SettlementResult{Outcome: models.OutcomeSettled, Order: order, Ticket: ticket}
	return nil
}

func (s *SettlementService) resolveReferences(ctx context.Context, req *models.SettlementRequest) (*models.InventoryUnit, *models.Event, error) {
	unit, err := s.store.GetInventoryUnit(ctx, req.InventoryUnitID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if unit == nil {
		s.log.LogSettlement("REJECT", req.PaymentRef, fmt.Sprintf("Unknown inventory unit %s", req.InventoryUnitID))
		return nil, nil, ErrInvalidReference
	}
	// The confirmation's event id must agree with our own records, not
	// just exist: the payment source is trusted for payment status only.
	if unit.EventID != req.EventID {
		s.log.LogSettlement("REJECT", req.PaymentRef, fmt.Sprintf("Unit %s does not belong to event %s", req.InventoryUnitID, req.EventID))
		return nil, nil, ErrInvalidReference
	}
	event, err := s.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if event == nil {
		return nil, nil, ErrInvalidReference
	}
	return unit, event, nil
}

// afterSettled runs the non-transactional side effects. None of them can
// fail the settlement: it is already committed.
func (s *SettlementService) afterSettled(ctx context.Context, req *models.SettlementRequest, event *models.Event, result *models.SettlementResult) {
	if s.cache != nil {
		if err := s.cache.MarkSettled(ctx, req.PaymentRef); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to mark payment %s settled: %v", req.PaymentRef, err))
		}
	}

	if s.producer != nil {
		settled := &models.SettlementEvent{
			Type:       "settlement.settled",
			PaymentRef: req.PaymentRef,
			Order:      result.Order,
			Ticket:     result.Ticket,
			Timestamp:  time.Now(),
		}
		if err := s.producer.PublishSettlementEvent(settled); err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("Failed to publish settlement event for %s: %v", req.PaymentRef, err))
		}
	}

	if s.notifier != nil && req.BuyerEmail != "" {
		go func() {
			if err := s.notifier.SendPurchaseConfirmation(req.BuyerEmail, event.EventID, event.Title, req.AmountPaidMinor); err != nil {
				s.log.Error("EMAIL", fmt.Sprintf("Failed to send confirmation for %s: %v", req.PaymentRef, err))
			}
		}()
	}
}
