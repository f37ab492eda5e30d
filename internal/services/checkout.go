package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"localhost-events/internal/config"
	"localhost-events/internal/logger"
	"localhost-events/internal/models"
	"localhost-events/internal/storage"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrUnitNotFound           = errors.New("inventory unit not found")
	ErrUnitUnavailable        = errors.New("inventory unit unavailable")
)

// CheckoutService owns the hosted-checkout leg: it creates Stripe Checkout
// Sessions for a single ticket type and later retrieves the session to turn
// Stripe's answer into a SettlementRequest. It trusts Stripe for payment
// status only; every identifier it forwards is re-verified by the
// settlement engine.
type CheckoutService struct {
	client *client.API
	store  storage.Store
	cfg    config.StripeConfig
	log    *logger.Logger
}

func NewCheckoutService(store storage.Store, cfg config.StripeConfig, log *logger.Logger) (*CheckoutService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &CheckoutService{
		client: sc,
		store:  store,
		cfg:    cfg,
		log:    log,
	}, nil
}

// CreateSession builds a Checkout Session for one unit of the requested
// ticket type. The price comes from our inventory record, never from the
// client, and the session metadata carries the identifiers the settlement
// engine will verify on the return trip.
func (s *CheckoutService) CreateSession(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	unit, err := s.store.GetInventoryUnit(ctx, req.InventoryUnitID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if unit == nil {
		return nil, ErrUnitNotFound
	}
	if unit.Retired || unit.RemainingCapacity < 1 {
		// Early sold-out feedback. The authoritative check is still the
		// guarded decrement at settlement time.
		return nil, ErrUnitUnavailable
	}

	event, err := s.store.GetEvent(ctx, unit.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if event == nil {
		return nil, ErrUnitNotFound
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:      stripe.String(req.BuyerEmail),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s - %s", event.Title, unit.Name)),
					},
					UnitAmount: stripe.Int64(unit.UnitPriceMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
	}
	params.AddMetadata("buyer_id", req.BuyerID)
	params.AddMetadata("buyer_name", req.BuyerName)
	params.AddMetadata("inventory_unit_id", unit.UnitID)
	params.AddMetadata("event_id", event.EventID)

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogSettlement("CHECKOUT", sess.ID, fmt.Sprintf("Checkout session created for unit %s", unit.UnitID))
	return &models.CheckoutResponse{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
	}, nil
}

// LookupConfirmation retrieves a Checkout Session from Stripe and maps it
// into the settlement engine's input shape. The session id doubles as the
// external payment reference.
func (s *CheckoutService) LookupConfirmation(ctx context.Context, sessionID string) (*models.SettlementRequest, error) {
	sess, err := s.client.CheckoutSessions.Get(sessionID, nil)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve checkout session %s: %v", sessionID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	req := &models.SettlementRequest{
		PaymentRef:      sess.ID,
		ConfirmedPaid:   sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		BuyerID:         sess.Metadata["buyer_id"],
		BuyerName:       sess.Metadata["buyer_name"],
		InventoryUnitID: sess.Metadata["inventory_unit_id"],
		EventID:         sess.Metadata["event_id"],
		AmountPaidMinor: sess.AmountTotal,
	}
	if sess.CustomerDetails != nil {
		req.BuyerEmail = sess.CustomerDetails.Email
		if req.BuyerName == "" {
			req.BuyerName = sess.CustomerDetails.Name
		}
	}
	return req, nil
}
