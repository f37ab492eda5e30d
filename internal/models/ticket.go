package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "VALID"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

// Ticket is the redeemable pass minted for one settled order line. It is
// only ever created inside a settlement transaction, together with its
// Order and the matching inventory decrement.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID        string       `json:"ticketID" bun:"ticket_id,pk"`
	OrderID         string       `json:"orderID" bun:"order_id"`
	InventoryUnitID string       `json:"inventoryUnitID" bun:"inventory_unit_id"`
	EventID         string       `json:"eventID" bun:"event_id"`
	Status          TicketStatus `json:"status" bun:"status"`
	// RedemptionToken is opaque and unguessable. A gate-scanning service
	// exchanges it for entry; it never appears in list responses.
	RedemptionToken string    `json:"redemptionToken,omitempty" bun:"redemption_token"`
	CreatedAt       time.Time `json:"createdAt" bun:"created_at"`
}
