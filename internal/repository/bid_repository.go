package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

const bidColumns = `id, session_id, driver_id, price, message, status, created_at, updated_at`

// BidRepo stores reverse-auction offers.
type BidRepo struct {
	db   *sql.DB
	lock string
}

// NewBidRepo returns a new BidRepo bound to the given database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db, lock: lockClause(db)} }

func scanBid(s rowScanner) (model.Bid, error) {
	var (
		b   model.Bid
		msg sql.NullString
	)
	if err := s.Scan(&b.ID, &b.SessionID, &b.DriverID, &b.Price, &msg, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Bid{}, err
	}
	if msg.Valid {
		v := msg.String
		b.Message = &v
	}
	return b, nil
}

// CreateTx inserts a pending bid.  A second bid by the same driver on the
// same session yields ErrBidExists.
func (r *BidRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Bid) error {
	now := time.Now().UTC()
	b.Status = model.BidPending
	b.CreatedAt, b.UpdatedAt = now, now
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bids (session_id, driver_id, price, message, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.SessionID, b.DriverID, b.Price, b.Message, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrBidExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByID loads a bid.
func (r *BidRepo) GetByID(ctx context.Context, id uint64) (model.Bid, error) {
	b, err := scanBid(r.db.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, id))
	return b, notFound(err)
}

// GetByIDTx loads and locks a bid inside tx.
func (r *BidRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Bid, error) {
	b, err := scanBid(tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`+r.lock, id))
	return b, notFound(err)
}

// ListBySession returns a session's bids, cheapest first.
func (r *BidRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE session_id = ? ORDER BY price, created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HasAcceptedTx reports whether any bid of the session is accepted.
func (r *BidRepo) HasAcceptedTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bids WHERE session_id = ? AND status = ?`, sessionID, model.BidAccepted).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetStatusTx moves a pending bid to status.  It returns false when the
// bid was no longer pending.
func (r *BidRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.BidStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bids SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), id, model.BidPending)
	if err != nil {
		return false, TranslateTxError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RejectOthersTx rejects every other pending bid of the session and
// returns how many were rejected.
func (r *BidRepo) RejectOthersTx(ctx context.Context, tx *sql.Tx, sessionID, keepID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bids SET status = ?, updated_at = ? WHERE session_id = ? AND id <> ? AND status = ?`,
		model.BidRejected, time.Now().UTC(), sessionID, keepID, model.BidPending)
	if err != nil {
		return 0, TranslateTxError(err)
	}
	return res.RowsAffected()
}
