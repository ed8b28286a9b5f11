package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

const sessionColumns = `id, driver_id, title, dungeon_name, post_type, price_type, price,
	min_count, current_count, round, status, avg_round_minutes, created_at, updated_at`

// SessionRepo manages persistence for bus_sessions.
type SessionRepo struct {
	db   *sql.DB
	lock string
}

// NewSessionRepo constructs a SessionRepo given a DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db, lock: lockClause(db)} }

// DB exposes the underlying sql.DB so services can begin transactions
// spanning multiple repositories.
func (r *SessionRepo) DB() *sql.DB { return r.db }

func scanSession(s rowScanner) (model.Session, error) {
	var (
		sess  model.Session
		price sql.NullInt64
	)
	err := s.Scan(&sess.ID, &sess.DriverID, &sess.Title, &sess.DungeonName, &sess.PostType, &sess.PriceType, &price,
		&sess.MinCount, &sess.CurrentCount, &sess.Round, &sess.Status, &sess.AvgRoundMinutes, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return model.Session{}, err
	}
	if price.Valid {
		p := uint32(price.Int64)
		sess.Price = &p
	}
	return sess, nil
}

// Create inserts a new session in waiting status and populates its ID,
// counters and timestamps.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	now := time.Now().UTC()
	s.Status = model.SessionWaiting
	s.CurrentCount = 0
	s.Round = 0
	s.CreatedAt, s.UpdatedAt = now, now
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO bus_sessions (driver_id, title, dungeon_name, post_type, price_type, price,
		                           min_count, current_count, round, status, avg_round_minutes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)`,
		s.DriverID, s.Title, s.DungeonName, s.PostType, s.PriceType, s.Price,
		s.MinCount, s.Status, s.AvgRoundMinutes, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID loads a session.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM bus_sessions WHERE id = ?`, id))
	return s, notFound(err)
}

// GetForUpdateTx loads a session inside tx and, on MySQL, locks its row
// until the transaction ends.  Every queue mutation starts here so that
// admission, advancement and no-show on one session serialize.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM bus_sessions WHERE id = ?`+r.lock, id))
	return s, notFound(err)
}

// List returns sessions in the given statuses, newest first.  An empty
// status list returns the open sessions (waiting and running).
func (r *SessionRepo) List(ctx context.Context, statuses []model.SessionStatus, limit int) ([]model.Session, error) {
	if len(statuses) == 0 {
		statuses = []model.SessionStatus{model.SessionWaiting, model.SessionRunning}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args := make([]any, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM bus_sessions
		  WHERE status IN (`+placeholders(len(statuses))+`)
		  ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetStatusTx changes a session's status.
func (r *SessionRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.SessionStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bus_sessions SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// IncrementRoundTx advances the round counter by one.
func (r *SessionRepo) IncrementRoundTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bus_sessions SET round = round + 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// RecountTx recomputes current_count from the reservations ledger and
// stores it.  current_count is never written any other way.
func (r *SessionRepo) RecountTx(ctx context.Context, tx *sql.Tx, id uint64) (uint32, error) {
	var n uint32
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status IN (?, ?)`,
		id, model.ReservationWaiting, model.ReservationCalled).Scan(&n); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bus_sessions SET current_count = ?, updated_at = ? WHERE id = ?`, n, time.Now().UTC(), id); err != nil {
		return 0, err
	}
	return n, nil
}
