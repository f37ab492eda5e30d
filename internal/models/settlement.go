package models

import (
	"time"
)

type SettlementOutcome string

const (
	OutcomeSettled          SettlementOutcome = "settled"
	OutcomeAlreadyProcessed SettlementOutcome = "already_processed"
)

// SettlementRequest is what the payment-confirmation source hands the
// engine: an external payment reference, the source's authoritative paid
// flag, and the metadata that ties the payment back to our own entities.
type SettlementRequest struct {
	PaymentRef      string `json:"payment_ref"`
	ConfirmedPaid   bool   `json:"confirmed_paid"`
	BuyerID         string `json:"buyer_id"`
	BuyerEmail      string `json:"buyer_email"`
	BuyerName       string `json:"buyer_name"`
	InventoryUnitID string `json:"inventory_unit_id"`
	EventID         string `json:"event_id"`
	AmountPaidMinor int64  `json:"amount_paid_minor"`
}

type SettlementResult struct {
	Outcome SettlementOutcome `json:"outcome"`
	Order   *Order            `json:"order,omitempty"`
	Ticket  *Ticket           `json:"ticket,omitempty"`
}

// SettlementEvent is published to Kafka after a settlement commits.
type SettlementEvent struct {
	Type       string    `json:"type"`
	PaymentRef string    `json:"payment_ref"`
	Order      *Order    `json:"order"`
	Ticket     *Ticket   `json:"ticket"`
	Timestamp  time.Time `json:"timestamp"`
}

type CheckoutRequest struct {
	InventoryUnitID string `json:"inventory_unit_id" binding:"required"`
	BuyerID         string `json:"buyer_id" binding:"required"`
	BuyerEmail      string `json:"buyer_email" binding:"required,email"`
	BuyerName       string `json:"buyer_name"`
}

type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type VerifyPurchaseRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
