package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gbus-app/gbus-server/internal/model"
	q "github.com/gbus-app/gbus-server/internal/queue"
	"github.com/gbus-app/gbus-server/internal/repository"
)

const (
	maxReasonLen   = 1000
	maxSuspendDays = 3650
)

// ModerationService handles user reports and their resolution.
type ModerationService struct {
	repoSet
	deps Deps
	opts Options
}

// ReportInput is what a user submits when reporting someone.
type ReportInput struct {
	ReportedID uint64
	SessionID  *uint64
	Category   string
	Reason     string
}

// CreateReport files a pending report by reporterID.
func (s *ModerationService) CreateReport(ctx context.Context, reporterID uint64, in ReportInput) (model.Report, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "moderation", "create_report", "reporter_id", reporterID)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Reason = strings.TrimSpace(in.Reason)
	var v ValidationError
	if in.ReportedID == 0 {
		v.add("reported_id", "required")
	} else if in.ReportedID == reporterID {
		v.add("reported_id", "cannot report yourself")
	}
	if _, ok := model.ReportCategories[in.Category]; !ok {
		v.add("category", "unknown category")
	}
	if in.Reason == "" {
		v.add("reason", "required")
	} else if utf8.RuneCountInString(in.Reason) > maxReasonLen {
		v.add("reason", "too long")
	}
	if err := v.errOrNil(); err != nil {
		return model.Report{}, err
	}
	if err := s.requireActive(ctx, reporterID); err != nil {
		logResult(logger, "report", err)
		return model.Report{}, err
	}
	if _, err := s.users.GetByID(ctx, in.ReportedID); err != nil {
		return model.Report{}, err
	}
	if in.SessionID != nil {
		if _, err := s.sessions.GetByID(ctx, *in.SessionID); err != nil {
			return model.Report{}, err
		}
	}
	rp := model.Report{
		ReporterID: reporterID,
		ReportedID: in.ReportedID,
		SessionID:  in.SessionID,
		Category:   in.Category,
		Reason:     in.Reason,
	}
	if err := s.reports.Create(ctx, &rp); err != nil {
		logResult(logger, "report", err)
		return model.Report{}, err
	}
	logger.Info("report filed", "report_id", rp.ID, "reported_id", rp.ReportedID, "category", rp.Category)
	return rp, nil
}

// ListReports returns reports, optionally filtered by status.
func (s *ModerationService) ListReports(ctx context.Context, status model.ReportStatus) ([]model.Report, error) {
	if status != "" && status != model.ReportPending && !status.Resolution() {
		var v ValidationError
		v.add("status", "unknown status")
		return nil, &v
	}
	return s.reports.List(ctx, status)
}

// ResolveInput is the staff decision on a report.
type ResolveInput struct {
	Status      model.ReportStatus
	Note        string
	SuspendDays int
}

// ResolveReport closes a pending report exactly once.  A warning deducts
// the configured penalty from the reported user's honor score, floored at
// zero; an actioned report with SuspendDays suspends the user from now.
// Report and user changes commit together.
func (s *ModerationService) ResolveReport(ctx context.Context, reportID, staffID uint64, in ResolveInput) (model.Report, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "moderation", "resolve_report", "report_id", reportID, "staff_id", staffID)
	in.Note = strings.TrimSpace(in.Note)
	var v ValidationError
	if !in.Status.Resolution() {
		v.add("status", "must be reviewed, warned, actioned or dismissed")
	}
	if in.SuspendDays < 0 || in.SuspendDays > maxSuspendDays {
		v.add("suspend_days", "out of range")
	}
	if in.SuspendDays > 0 && in.Status != model.ReportActioned {
		v.add("suspend_days", "only valid when actioned")
	}
	if err := v.errOrNil(); err != nil {
		return model.Report{}, err
	}
	var note *string
	if in.Note != "" {
		note = &in.Note
	}

	now := time.Now().UTC()
	var rp model.Report
	err := withTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		var err error
		rp, err = s.reports.GetByIDTx(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if rp.Status != model.ReportPending {
			return repository.ErrAlreadyResolved
		}
		if err := s.reports.ResolveTx(ctx, tx, reportID, in.Status, note, staffID, now); err != nil {
			return err
		}
		switch {
		case in.Status == model.ReportWarned:
			if err := s.users.DeductHonorTx(ctx, tx, rp.ReportedID, s.opts.WarnPenalty); err != nil {
				return err
			}
		case in.Status == model.ReportActioned && in.SuspendDays > 0:
			until := now.Add(time.Duration(in.SuspendDays) * 24 * time.Hour)
			if err := s.users.SuspendUntilTx(ctx, tx, rp.ReportedID, until); err != nil {
				return err
			}
		}
		rp.Status = in.Status
		rp.AdminNote = note
		rp.ReviewedBy = &staffID
		rp.ReviewedAt = &now
		return nil
	})
	if err != nil {
		logResult(logger, "resolve report", err)
		return model.Report{}, err
	}
	logger.Info("report resolved", "status", rp.Status, "reported_id", rp.ReportedID)
	s.deps.Profiles.Invalidate(ctx, rp.ReportedID)

	ev := q.NewEvent(q.EventReportResolved)
	ev.ReportID, ev.UserID = rp.ID, rp.ReportedID
	if rp.SessionID != nil {
		ev.SessionID = *rp.SessionID
	}
	ev.Details = map[string]string{"status": string(rp.Status)}
	if in.SuspendDays > 0 {
		ev.Details["suspend_days"] = strconv.Itoa(in.SuspendDays)
	}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	return rp, nil
}
