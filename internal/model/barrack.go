package model

import "time"

// BarrackCharacter is one character on a user's saved roster.  Bulk
// reservations draw their names from this table.
type BarrackCharacter struct {
	ID        uint64    `json:"id"`         // barracks.id
	UserID    uint64    `json:"user_id"`    // barracks.user_id
	CharName  string    `json:"char_name"`  // barracks.char_name
	SortOrder uint32    `json:"sort_order"` // barracks.sort_order
	CreatedAt time.Time `json:"created_at"` // barracks.created_at
}

// DriverRating is a passenger's score for the driver of a completed
// session.
type DriverRating struct {
	ID          uint64    `json:"id"`                // driver_ratings.id
	SessionID   uint64    `json:"session_id"`        // driver_ratings.session_id
	DriverID    uint64    `json:"driver_id"`         // driver_ratings.driver_id
	RaterID     uint64    `json:"rater_id"`          // driver_ratings.rater_id
	SpeedScore  uint8     `json:"speed_score"`       // driver_ratings.speed_score (1..5)
	SafetyScore uint8     `json:"safety_score"`      // driver_ratings.safety_score (1..5)
	Comment     *string   `json:"comment,omitempty"` // driver_ratings.comment (nullable)
	CreatedAt   time.Time `json:"created_at"`        // driver_ratings.created_at
}

// RatingSummary aggregates the ratings of one driver.
type RatingSummary struct {
	DriverID  uint64  `json:"driver_id"`
	Count     uint32  `json:"count"`
	SpeedAvg  float64 `json:"speed_avg"`
	SafetyAvg float64 `json:"safety_avg"`
}
