package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"localhost-events/internal/models"
)

// MemoryStore backs tests and mock mode. Transactions are serialized by a
// single mutex and rolled back by restoring a snapshot, which gives the
// same all-or-nothing and total-ordering guarantees the MySQL store gets
// from InnoDB, minus the durability.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	events  map[string]*models.Event
	units   map[string]*models.InventoryUnit
	orders  map[string]*models.Order
	byRef   map[string]*models.Order
	tickets map[string]*models.Ticket
	users   map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*models.Event),
		units:   make(map[string]*models.InventoryUnit),
		orders:  make(map[string]*models.Order),
		byRef:   make(map[string]*models.Order),
		tickets: make(map[string]*models.Ticket),
		users:   make(map[string]*models.User),
	}
}

type memTxKey struct{}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if in, _ := ctx.Value(memTxKey{}).(bool); in {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	txCtx := context.WithValue(ctx, memTxKey{}, true)
	if err := fn(txCtx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	units   map[string]models.InventoryUnit
	orders  map[string]*models.Order
	byRef   map[string]*models.Order
	tickets map[string]*models.Ticket
	users   map[string]*models.User
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memSnapshot{
		units:   make(map[string]models.InventoryUnit, len(s.units)),
		orders:  make(map[string]*models.Order, len(s.orders)),
		byRef:   make(map[string]*models.Order, len(s.byRef)),
		tickets: make(map[string]*models.Ticket, len(s.tickets)),
		users:   make(map[string]*models.User, len(s.users)),
	}
	for id, unit := range s.units {
		snap.units[id] = *unit
	}
	for id, order := range s.orders {
		snap.orders[id] = order
	}
	for ref, order := range s.byRef {
		snap.byRef[ref] = order
	}
	for id, ticket := range s.tickets {
		snap.tickets[id] = ticket
	}
	for id, user := range s.users {
		snap.users[id] = user
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units = make(map[string]*models.InventoryUnit, len(snap.units))
	for id, unit := range snap.units {
		u := unit
		s.units[id] = &u
	}
	s.orders = snap.orders
	s.byRef = snap.byRef
	s.tickets = snap.tickets
	s.users = snap.users
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EventID] = event
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, exists := s.events[eventID]
	if !exists {
		return nil, nil
	}
	out := *event
	out.InventoryUnits = s.unitsForEvent(eventID)
	return &out, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, query string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var events []*models.Event
	for _, event := range s.events {
		if q != "" &&
			!strings.Contains(strings.ToLower(event.Title), q) &&
			!strings.Contains(strings.ToLower(event.Location), q) &&
			!strings.Contains(strings.ToLower(event.Description), q) {
			continue
		}
		out := *event
		out.InventoryUnits = s.unitsForEvent(event.EventID)
		events = append(events, &out)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}

func (s *MemoryStore) unitsForEvent(eventID string) []*models.InventoryUnit {
	var units []*models.InventoryUnit
	for _, unit := range s.units {
		if unit.EventID == eventID {
			u := *unit
			units = append(units, &u)
		}
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].UnitPriceMinor < units[j].UnitPriceMinor
	})
	return units
}

func (s *MemoryStore) CreateInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *unit
	s.units[unit.UnitID] = &u
	return nil
}

func (s *MemoryStore) GetInventoryUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, exists := s.units[unitID]
	if !exists {
		return nil, nil
	}
	out := *unit
	return &out, nil
}

func (s *MemoryStore) DecrementCapacity(ctx context.Context, unitID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, exists := s.units[unitID]
	if !exists || unit.RemainingCapacity < 1 {
		return false, nil
	}
	unit.RemainingCapacity--
	return true, nil
}

func (s *MemoryStore) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, exists := s.byRef[paymentRef]
	if !exists {
		return nil, nil
	}
	return order, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[order.ExternalPaymentRef]; exists {
		return ErrDuplicatePaymentRef
	}
	s.orders[order.OrderID] = order
	s.byRef[order.ExternalPaymentRef] = order
	return nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.TicketID] = ticket
	return nil
}

func (s *MemoryStore) UpsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.UserID]; !exists {
		s.users[user.UserID] = user
	}
	return nil
}

func (s *MemoryStore) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, exists := s.tickets[ticketID]
	if !exists {
		return nil, nil
	}
	return ticket, nil
}

func (s *MemoryStore) ListTicketsByBuyer(ctx context.Context, buyerID string) ([]*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tickets []*models.Ticket
	for _, ticket := range s.tickets {
		order, exists := s.orders[ticket.OrderID]
		if exists && order.BuyerID == buyerID {
			tickets = append(tickets, ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, exists := s.orders[orderID]
	if !exists {
		return nil, nil
	}
	return order, nil
}

func (s *MemoryStore) HealthCheck() error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
