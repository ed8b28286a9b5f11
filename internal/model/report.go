package model

import "time"

// ReportStatus tracks moderation of a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportWarned    ReportStatus = "warned"
	ReportActioned  ReportStatus = "actioned"
	ReportDismissed ReportStatus = "dismissed"
)

// Resolution reports whether s is a valid target for resolving a report.
func (s ReportStatus) Resolution() bool {
	switch s {
	case ReportReviewed, ReportWarned, ReportActioned, ReportDismissed:
		return true
	}
	return false
}

// Report categories accepted from users.
var ReportCategories = map[string]string{
	"noshow": "no-show / went idle",
	"fraud":  "fraud / ran off with payment",
	"abuse":  "abusive language / bad manners",
	"cheat":  "hacks / bug abuse",
	"other":  "other",
}

// Report is a complaint by one user against another.
type Report struct {
	ID         uint64       `json:"id"`                    // reports.id
	ReporterID uint64       `json:"reporter_id"`           // reports.reporter_id
	ReportedID uint64       `json:"reported_id"`           // reports.reported_id
	SessionID  *uint64      `json:"session_id,omitempty"`  // reports.session_id (nullable)
	Category   string       `json:"category"`              // reports.category
	Reason     string       `json:"reason"`                // reports.reason
	Status     ReportStatus `json:"status"`                // reports.status
	AdminNote  *string      `json:"admin_note,omitempty"`  // reports.admin_note (nullable)
	ReviewedBy *uint64      `json:"reviewed_by,omitempty"` // reports.reviewed_by (nullable)
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty"` // reports.reviewed_at (nullable)
	CreatedAt  time.Time    `json:"created_at"`            // reports.created_at

	// ReportedCount is the number of reports ever filed against ReportedID.
	// Only listings fill it in.
	ReportedCount uint32 `json:"reported_count,omitempty"`
}
