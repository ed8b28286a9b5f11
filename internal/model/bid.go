package model

import "time"

// BidStatus is the state of a reverse-auction offer.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Valid reports whether s is a known bid status.
func (s BidStatus) Valid() bool {
	return s == BidPending || s == BidAccepted || s == BidRejected
}

// Bid is a driver's offer to run a barrack-bus session.  One bid is
// allowed per (session, driver).
type Bid struct {
	ID        uint64    `json:"id"`                // bids.id
	SessionID uint64    `json:"session_id"`        // bids.session_id
	DriverID  uint64    `json:"driver_id"`         // bids.driver_id
	Price     uint32    `json:"price"`             // bids.price
	Message   *string   `json:"message,omitempty"` // bids.message (nullable)
	Status    BidStatus `json:"status"`            // bids.status
	CreatedAt time.Time `json:"created_at"`        // bids.created_at
	UpdatedAt time.Time `json:"updated_at"`        // bids.updated_at
}
