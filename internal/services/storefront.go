package services

import (
	"context"
	"errors"
	"fmt"

	"localhost-events/internal/logger"
	"localhost-events/internal/models"
	"localhost-events/internal/storage"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrTicketNotFound = errors.New("ticket not found")
)

// StorefrontService serves the read side of the shop: event browsing and a
// buyer's own tickets. All writes stay with the settlement engine.
type StorefrontService struct {
	store storage.Store
	log   *logger.Logger
}

func NewStorefrontService(store storage.Store, log *logger.Logger) *StorefrontService {
	return &StorefrontService{
		store: store,
		log:   log,
	}
}

func (s *StorefrontService) ListEvents(ctx context.Context, query string) ([]*models.Event, error) {
	events, err := s.store.ListEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return events, nil
}

func (s *StorefrontService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *StorefrontService) ListTickets(ctx context.Context, buyerID string) ([]*models.Ticket, error) {
	tickets, err := s.store.ListTicketsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// The redemption token is only released on the single-ticket view.
	out := make([]*models.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		t := *ticket
		t.RedemptionToken = ""
		out = append(out, &t)
	}
	return out, nil
}

// GetTicket returns a ticket only to the buyer whose order owns it.
func (s *StorefrontService) GetTicket(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	order, err := s.store.GetOrder(ctx, ticket.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil || order.BuyerID != buyerID {
		s.log.LogSecurity("TICKET_ACCESS", fmt.Sprintf("Buyer %s denied access to ticket %s", buyerID, ticketID))
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}
