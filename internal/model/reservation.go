package model

import "time"

// ReservationStatus is the queue state of a single character slot.
type ReservationStatus string

const (
	ReservationWaiting ReservationStatus = "waiting"
	ReservationCalled  ReservationStatus = "called"
	ReservationDone    ReservationStatus = "done"
	ReservationNoShow  ReservationStatus = "noshow"
)

// Active reports whether the reservation still counts towards a
// session's current_count.
func (s ReservationStatus) Active() bool {
	return s == ReservationWaiting || s == ReservationCalled
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationDone || s == ReservationNoShow
}

// CanTransitionTo enforces waiting → called → done and called → noshow.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	switch s {
	case ReservationWaiting:
		return next == ReservationCalled
	case ReservationCalled:
		return next == ReservationDone || next == ReservationNoShow
	}
	return false
}

// Reservation is one character's place in a session queue.  Rows live
// in the `reservations` table and are only created by the admission
// transaction.
//
// Fields:
//  ID        – primary key identifier.
//  SessionID – session the character is queued in.
//  UserID    – owner of the character.
//  CharName  – character name from the owner's barrack.
//  QueueNo   – position assigned at admission, never reused.
//  Status    – waiting, called, done or noshow.
type Reservation struct {
	ID        uint64            `json:"id"`         // reservations.id
	SessionID uint64            `json:"session_id"` // reservations.session_id
	UserID    uint64            `json:"user_id"`    // reservations.user_id
	CharName  string            `json:"char_name"`  // reservations.char_name
	QueueNo   uint32            `json:"queue_no"`   // reservations.queue_no
	Status    ReservationStatus `json:"status"`     // reservations.status
	CreatedAt time.Time         `json:"created_at"` // reservations.created_at
	UpdatedAt time.Time         `json:"updated_at"` // reservations.updated_at
}

// QueuePosition is a reservation enriched with the caller-facing
// distance to the currently called number and an ETA estimate.
type QueuePosition struct {
	Reservation
	SessionTitle string `json:"session_title"`
	DungeonName  string `json:"dungeon_name"`
	Ahead        uint32 `json:"ahead"`
	EtaMinutes   uint32 `json:"eta_minutes"`
}

// EstimateAhead returns how many queue numbers lie between the called
// number and queueNo, and the ETA in minutes for that distance.
func EstimateAhead(queueNo, calledNo, avgRoundMinutes uint32) (ahead, eta uint32) {
	if queueNo <= calledNo {
		return 0, 0
	}
	ahead = queueNo - calledNo
	if avgRoundMinutes == 0 {
		avgRoundMinutes = 10
	}
	return ahead, ahead * avgRoundMinutes
}
