package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

const reportColumns = `id, reporter_id, reported_id, session_id, category, reason, status,
	admin_note, reviewed_by, reviewed_at, created_at`

// ReportRepo stores user reports and their moderation outcome.
type ReportRepo struct {
	db   *sql.DB
	lock string
}

// NewReportRepo returns a new ReportRepo bound to the given database.
func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db, lock: lockClause(db)} }

func scanReport(s rowScanner) (model.Report, error) {
	var (
		rp         model.Report
		sessionID  sql.NullInt64
		note       sql.NullString
		reviewedBy sql.NullInt64
		reviewedAt sql.NullTime
	)
	err := s.Scan(&rp.ID, &rp.ReporterID, &rp.ReportedID, &sessionID, &rp.Category, &rp.Reason, &rp.Status,
		&note, &reviewedBy, &reviewedAt, &rp.CreatedAt)
	if err != nil {
		return model.Report{}, err
	}
	if sessionID.Valid {
		v := uint64(sessionID.Int64)
		rp.SessionID = &v
	}
	if note.Valid {
		v := note.String
		rp.AdminNote = &v
	}
	if reviewedBy.Valid {
		v := uint64(reviewedBy.Int64)
		rp.ReviewedBy = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time.UTC()
		rp.ReviewedAt = &v
	}
	return rp, nil
}

// Create inserts a pending report.
func (r *ReportRepo) Create(ctx context.Context, rp *model.Report) error {
	rp.Status = model.ReportPending
	rp.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (reporter_id, reported_id, session_id, category, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rp.ReporterID, rp.ReportedID, rp.SessionID, rp.Category, rp.Reason, rp.Status, rp.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rp.ID = uint64(id)
	return nil
}

// GetByIDTx loads and locks a report inside tx.
func (r *ReportRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Report, error) {
	rp, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`+r.lock, id))
	return rp, notFound(err)
}

// countScanner appends the reported_count column to a report scan.
type countScanner struct {
	rows  *sql.Rows
	count *uint32
}

func (c countScanner) Scan(dest ...any) error { return c.rows.Scan(append(dest, c.count)...) }

// List returns reports newest first, optionally filtered by status.  Each
// report carries how often its reported user has been reported in total.
func (r *ReportRepo) List(ctx context.Context, status model.ReportStatus) ([]model.Report, error) {
	q := `SELECT ` + reportColumns + `,
	        (SELECT COUNT(*) FROM reports other WHERE other.reported_id = rp.reported_id) AS reported_count
	        FROM reports rp`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Report{}
	for rows.Next() {
		var count uint32
		rp, err := scanReport(countScanner{rows: rows, count: &count})
		if err != nil {
			return nil, err
		}
		rp.ReportedCount = count
		out = append(out, rp)
	}
	return out, rows.Err()
}

// ResolveTx closes a pending report.  It returns ErrAlreadyResolved when
// the report has left pending in the meantime.
func (r *ReportRepo) ResolveTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReportStatus, note *string, reviewer uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reports SET status = ?, admin_note = ?, reviewed_by = ?, reviewed_at = ?
		  WHERE id = ? AND status = ?`,
		status, note, reviewer, at.UTC(), id, model.ReportPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}
