package storage

import (
	"context"
	"errors"

	"localhost-events/internal/models"
)

// ErrDuplicatePaymentRef reports an order insert that lost the race on the
// external_payment_ref uniqueness constraint. The settlement engine treats
// it as the idempotency fence firing, not as a storage failure.
var ErrDuplicatePaymentRef = errors.New("order already exists for payment ref")

// Store is the durable state behind the settlement engine. Lookup methods
// return (nil, nil) when the row does not exist; callers decide whether
// absence is an error.
//
// WithTx runs fn inside one storage transaction. Every Store method called
// with the context fn receives participates in that transaction, and all of
// fn's writes commit or roll back together.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Events and inventory. Creation has no HTTP surface here; it exists
	// for provisioning scripts and tests.
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListEvents(ctx context.Context, query string) ([]*models.Event, error)
	CreateInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error
	GetInventoryUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error)

	// DecrementCapacity is the single chokepoint that keeps capacity
	// non-negative: one conditional update, no read-then-write. It reports
	// false when no unit had capacity left to take.
	DecrementCapacity(ctx context.Context, unitID string) (bool, error)

	GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	UpsertUser(ctx context.Context, user *models.User) error

	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	ListTicketsByBuyer(ctx context.Context, buyerID string) ([]*models.Ticket, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)

	HealthCheck() error
	Close() error
}
