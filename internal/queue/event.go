// Package queue defines the domain events exchanged over the message
// broker and the background consumer that writes them to the audit log.
package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventsQueue is the durable queue every domain event is published to.
const EventsQueue = "gbus.events"

// Event types.
const (
	EventReservationsAdmitted = "reservations.admitted"
	EventQueueCalled          = "queue.called"
	EventReservationNoShow    = "reservation.noshow"
	EventSessionStatus        = "session.status_changed"
	EventBidPlaced            = "bid.placed"
	EventBidResolved          = "bid.resolved"
	EventReportResolved       = "report.resolved"
)

// Event is published after a state change commits.  It carries enough
// identifiers for downstream consumers to log, notify or trigger
// analytics without querying the primary database.
type Event struct {
	EventID       string            `json:"event_id"`
	Type          string            `json:"type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	SessionID     uint64            `json:"session_id,omitempty"`
	UserID        uint64            `json:"user_id,omitempty"`
	ReservationID uint64            `json:"reservation_id,omitempty"`
	BidID         uint64            `json:"bid_id,omitempty"`
	ReportID      uint64            `json:"report_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// NewEvent stamps a fresh id and time on an event of the given type.
func NewEvent(typ string) Event {
	return Event{EventID: uuid.NewString(), Type: typ, OccurredAt: time.Now().UTC()}
}

// Line renders the event as one human-friendly audit log line.
func (e Event) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%s", e.OccurredAt.UTC().Format(time.RFC3339), e.Type, e.EventID)
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"session_id", e.SessionID},
		{"user_id", e.UserID},
		{"reservation_id", e.ReservationID},
		{"bid_id", e.BidID},
		{"report_id", e.ReportID},
	} {
		if f.v != 0 {
			fmt.Fprintf(&b, " | %s=%d", f.name, f.v)
		}
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%q", k, e.Details[k])
	}
	b.WriteByte('\n')
	return b.String()
}
