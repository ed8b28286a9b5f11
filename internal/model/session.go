package model

import "time"

// PostType describes what a session recruits for.
type PostType string

const (
	PostParty      PostType = "party"       // party recruitment, min_count = party size
	PostBus        PostType = "bus"         // driver recruits passengers
	PostBarrackBus PostType = "barrack_bus" // barrack owner posts a run, drivers bid
)

// Valid reports whether p is a known post type.
func (p PostType) Valid() bool {
	switch p {
	case PostParty, PostBus, PostBarrackBus:
		return true
	}
	return false
}

// PriceType selects between a fixed fare and a reverse auction.
type PriceType string

const (
	PriceFixed   PriceType = "fixed"
	PriceAuction PriceType = "auction"
)

// Valid reports whether p is a known price type.
func (p PriceType) Valid() bool { return p == PriceFixed || p == PriceAuction }

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionWaiting, SessionRunning, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// Open reports whether the session still admits reservations and bids.
func (s SessionStatus) Open() bool { return s == SessionWaiting || s == SessionRunning }

// sessionTransitions lists the forward-only moves a driver may make.
// Admins bypass this table through the override endpoint.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionWaiting: {SessionRunning, SessionCompleted, SessionCancelled},
	SessionRunning: {SessionCompleted, SessionCancelled},
}

// CanTransitionTo reports whether a driver may move a session from s to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is a bus, party or barrack-bus run owned by a driver.  It
// corresponds to a row in the `bus_sessions` table.
//
// Fields:
//  ID              – primary key identifier.
//  DriverID        – user who owns the session.
//  Title           – free-text title.
//  DungeonName     – dungeon identifier from the catalog (or free text).
//  PostType        – party, bus or barrack_bus.
//  PriceType       – fixed or auction.
//  Price           – fixed fare, nil for auctions or free runs.
//  MinCount        – admission threshold shown to passengers.
//  CurrentCount    – number of waiting + called reservations.
//  Round           – driver-advanced round counter.
//  Status          – waiting, running, completed or cancelled.
//  AvgRoundMinutes – average minutes per round, used for ETA.
type Session struct {
	ID              uint64        `json:"id"`                // bus_sessions.id
	DriverID        uint64        `json:"driver_id"`         // bus_sessions.driver_id
	Title           string        `json:"title"`             // bus_sessions.title
	DungeonName     string        `json:"dungeon_name"`      // bus_sessions.dungeon_name
	PostType        PostType      `json:"post_type"`         // bus_sessions.post_type
	PriceType       PriceType     `json:"price_type"`        // bus_sessions.price_type
	Price           *uint32       `json:"price,omitempty"`   // bus_sessions.price (nullable)
	MinCount        uint32        `json:"min_count"`         // bus_sessions.min_count
	CurrentCount    uint32        `json:"current_count"`     // bus_sessions.current_count
	Round           uint32        `json:"round"`             // bus_sessions.round
	Status          SessionStatus `json:"status"`            // bus_sessions.status
	AvgRoundMinutes uint32        `json:"avg_round_minutes"` // bus_sessions.avg_round_minutes
	CreatedAt       time.Time     `json:"created_at"`        // bus_sessions.created_at
	UpdatedAt       time.Time     `json:"updated_at"`        // bus_sessions.updated_at
}

// Ready reports whether enough passengers have queued to start.
func (s Session) Ready() bool {
	return s.Status == SessionWaiting && s.MinCount > 0 && s.CurrentCount >= s.MinCount
}
