package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

const reservationColumns = `id, session_id, user_id, char_name, queue_no, status, created_at, updated_at`

// ReservationRepo is the queue ledger.  Writes only happen through the
// *Tx methods so that admission, advancement and no-show each run inside
// a single transaction owned by the service layer.  All timestamps are
// stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(s rowScanner) (model.Reservation, error) {
	var res model.Reservation
	err := s.Scan(&res.ID, &res.SessionID, &res.UserID, &res.CharName, &res.QueueNo, &res.Status,
		&res.CreatedAt, &res.UpdatedAt)
	return res, err
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// MaxQueueNoTx returns the highest queue_no ever assigned in the session,
// or zero when the session has no reservations.  Numbers of terminal
// reservations count too, so a number is never handed out twice.
func (r *ReservationRepo) MaxQueueNoTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (uint32, error) {
	var top sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(queue_no) FROM reservations WHERE session_id = ?`, sessionID).Scan(&top); err != nil {
		return 0, err
	}
	if !top.Valid {
		return 0, nil
	}
	return uint32(top.Int64), nil
}

// ReservedNamesTx returns which of names already hold a waiting, called or
// done reservation in the session.
func (r *ReservationRepo) ReservedNamesTx(ctx context.Context, tx *sql.Tx, sessionID uint64, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(names)+4)
	args = append(args, sessionID, model.ReservationWaiting, model.ReservationCalled, model.ReservationDone)
	for _, n := range names {
		args = append(args, n)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT char_name FROM reservations
		  WHERE session_id = ? AND status IN (?, ?, ?)
		    AND char_name IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taken []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		taken = append(taken, n)
	}
	return taken, rows.Err()
}

// CreateTx inserts a waiting reservation and populates its ID and
// timestamps.  A clash on (session_id, queue_no) means another writer
// numbered the queue concurrently and is reported as
// ErrTransactionConflict.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	now := time.Now().UTC()
	res.Status = model.ReservationWaiting
	res.CreatedAt, res.UpdatedAt = now, now
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (session_id, user_id, char_name, queue_no, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.UserID, res.CharName, res.QueueNo, res.Status, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrTransactionConflict
		}
		return TranslateTxError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// CalledTx returns the session's called reservation.  ok is false when
// nobody is called.
func (r *ReservationRepo) CalledTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (res model.Reservation, ok bool, err error) {
	res, err = scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE session_id = ? AND status = ? ORDER BY queue_no LIMIT 1`,
		sessionID, model.ReservationCalled))
	if err == sql.ErrNoRows {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

// NextWaitingTx returns the waiting reservation with the lowest queue_no.
func (r *ReservationRepo) NextWaitingTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (res model.Reservation, ok bool, err error) {
	res, err = scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE session_id = ? AND status = ? ORDER BY queue_no LIMIT 1`,
		sessionID, model.ReservationWaiting))
	if err == sql.ErrNoRows {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

// LastResolvedTx returns the most recently finished reservation of the
// session, done or noshow.  Calls happen in queue_no order, so that is the
// finished row with the highest queue_no.
func (r *ReservationRepo) LastResolvedTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (res model.Reservation, ok bool, err error) {
	res, err = scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE session_id = ? AND status IN (?, ?) ORDER BY queue_no DESC LIMIT 1`,
		sessionID, model.ReservationDone, model.ReservationNoShow))
	if err == sql.ErrNoRows {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

// TransitionTx moves a reservation from one status to another with a
// compare-and-set on the current status.  It returns false when the row
// was no longer in status from, which is how a lost race shows up.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.ReservationStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, ErrInvalidTransition
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return false, TranslateTxError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID loads a reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	return res, notFound(err)
}

// GetByIDTx loads a reservation inside tx.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	return res, notFound(err)
}

// ListBySession returns every reservation of a session in queue order.
func (r *ReservationRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE session_id = ? ORDER BY queue_no`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// WaitingWithinTx returns waiting reservations whose queue_no lies in
// (calledNo, calledNo+window].
func (r *ReservationRepo) WaitingWithinTx(ctx context.Context, tx *sql.Tx, sessionID uint64, calledNo, window uint32) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE session_id = ? AND status = ? AND queue_no > ? AND queue_no <= ?
		  ORDER BY queue_no`,
		sessionID, model.ReservationWaiting, calledNo, calledNo+window)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// HasReservation reports whether userID held any reservation in the
// session, whatever its status.
func (r *ReservationRepo) HasReservation(ctx context.Context, sessionID, userID uint64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND user_id = ?`, sessionID, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveByUser returns the user's waiting and called reservations
// across sessions together with each session's currently called number
// and its ETA inputs.  Ahead and EtaMinutes are filled in here.
func (r *ReservationRepo) ListActiveByUser(ctx context.Context, userID uint64) ([]model.QueuePosition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.session_id, r.user_id, r.char_name, r.queue_no, r.status, r.created_at, r.updated_at,
		        s.title, s.dungeon_name, s.avg_round_minutes,
		        COALESCE((SELECT c.queue_no FROM reservations c
		                   WHERE c.session_id = r.session_id AND c.status = ? LIMIT 1), 0)
		   FROM reservations r
		   JOIN bus_sessions s ON s.id = r.session_id
		  WHERE r.user_id = ? AND r.status IN (?, ?)
		  ORDER BY r.session_id, r.queue_no`,
		model.ReservationCalled, userID, model.ReservationWaiting, model.ReservationCalled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.QueuePosition{}
	for rows.Next() {
		var (
			p        model.QueuePosition
			avg      uint32
			calledNo uint32
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.CharName, &p.QueueNo, &p.Status,
			&p.CreatedAt, &p.UpdatedAt, &p.SessionTitle, &p.DungeonName, &avg, &calledNo); err != nil {
			return nil, err
		}
		p.Ahead, p.EtaMinutes = model.EstimateAhead(p.QueueNo, calledNo, avg)
		out = append(out, p)
	}
	return out, rows.Err()
}
