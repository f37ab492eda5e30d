package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	// The settlement engine only ever produces PAID orders. Refund and
	// cancellation flows live outside this service.
	OrderStatusPaid OrderStatus = "PAID"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID            string      `json:"orderID" bun:"order_id,pk"`
	BuyerID            string      `json:"buyerID" bun:"buyer_id"`
	Status             OrderStatus `json:"status" bun:"status"`
	TotalAmountMinor   int64       `json:"totalAmountMinor" bun:"total_amount_minor"`
	ExternalPaymentRef string      `json:"externalPaymentRef" bun:"external_payment_ref,unique"`
	CreatedAt          time.Time   `json:"createdAt" bun:"created_at"`
}
