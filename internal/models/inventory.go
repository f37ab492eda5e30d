package models

import (
	"time"

	"github.com/uptrace/bun"
)

// InventoryUnit is one purchasable ticket type of an event (e.g. "General
// Admission", "VIP"). RemainingCapacity never goes below zero: the only
// writer is the settlement engine's guarded decrement.
type InventoryUnit struct {
	bun.BaseModel `bun:"table:inventory_units"`

	UnitID            string    `json:"unitID" bun:"unit_id,pk"`
	EventID           string    `json:"eventID" bun:"event_id"`
	Name              string    `json:"name" bun:"name"`
	UnitPriceMinor    int64     `json:"unitPriceMinor" bun:"unit_price_minor"`
	RemainingCapacity int64     `json:"remainingCapacity" bun:"remaining_capacity"`
	Retired           bool      `json:"retired" bun:"retired"`
	CreatedAt         time.Time `json:"createdAt" bun:"created_at"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID     string    `json:"eventID" bun:"event_id,pk"`
	Title       string    `json:"title" bun:"title"`
	Description string    `json:"description" bun:"description"`
	Location    string    `json:"location" bun:"location"`
	Date        time.Time `json:"date" bun:"date"`
	OrganizerID string    `json:"organizerID" bun:"organizer_id"`
	CreatedAt   time.Time `json:"createdAt" bun:"created_at"`

	// Populated on reads for the browse endpoints, never written back.
	InventoryUnits []*InventoryUnit `json:"inventoryUnits,omitempty" bun:"-"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID    string    `json:"userID" bun:"user_id,pk"`
	Email     string    `json:"email" bun:"email"`
	Name      string    `json:"name" bun:"name"`
	CreatedAt time.Time `json:"createdAt" bun:"created_at"`
}
