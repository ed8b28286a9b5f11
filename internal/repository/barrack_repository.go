package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

// BarrackRepo stores each user's saved character roster.
type BarrackRepo struct {
	db *sql.DB
}

// NewBarrackRepo returns a new BarrackRepo bound to the given database.
func NewBarrackRepo(db *sql.DB) *BarrackRepo { return &BarrackRepo{db: db} }

// ListByUser returns the roster in sort order.
func (r *BarrackRepo) ListByUser(ctx context.Context, userID uint64) ([]model.BarrackCharacter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, char_name, sort_order, created_at FROM barracks
		  WHERE user_id = ? ORDER BY sort_order, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.BarrackCharacter{}
	for rows.Next() {
		var c model.BarrackCharacter
		if err := rows.Scan(&c.ID, &c.UserID, &c.CharName, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddMany appends names to the roster after the current highest
// sort_order, in input order.  The whole batch fails with ErrConflict
// when any name is already on the roster.
func (r *BarrackRepo) AddMany(ctx context.Context, userID uint64, names []string) ([]model.BarrackCharacter, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sort_order) FROM barracks WHERE user_id = ?`, userID).Scan(&maxOrder); err != nil {
		return nil, err
	}
	next := uint32(0)
	if maxOrder.Valid {
		next = uint32(maxOrder.Int64) + 1
	}
	now := time.Now().UTC()
	out := make([]model.BarrackCharacter, 0, len(names))
	for i, name := range names {
		c := model.BarrackCharacter{UserID: userID, CharName: name, SortOrder: next + uint32(i), CreatedAt: now}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO barracks (user_id, char_name, sort_order, created_at) VALUES (?, ?, ?, ?)`,
			c.UserID, c.CharName, c.SortOrder, c.CreatedAt)
		if err != nil {
			if isDuplicate(err) {
				return nil, ErrConflict
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		c.ID = uint64(id)
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}

// Delete removes a roster entry owned by userID.  It returns ErrNotFound
// when the entry does not exist and ErrForbidden when it belongs to
// someone else.
func (r *BarrackRepo) Delete(ctx context.Context, id, userID uint64) error {
	var owner uint64
	if err := r.db.QueryRowContext(ctx, `SELECT user_id FROM barracks WHERE id = ?`, id).Scan(&owner); err != nil {
		return notFound(err)
	}
	if owner != userID {
		return ErrForbidden
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM barracks WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

// OwnedNamesTx returns the subset of names present in the user's roster.
func (r *BarrackRepo) OwnedNamesTx(ctx context.Context, tx *sql.Tx, userID uint64, names []string) (map[string]bool, error) {
	owned := make(map[string]bool, len(names))
	if len(names) == 0 {
		return owned, nil
	}
	args := make([]any, 0, len(names)+1)
	args = append(args, userID)
	for _, n := range names {
		args = append(args, n)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT char_name FROM barracks WHERE user_id = ? AND char_name IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		owned[n] = true
	}
	return owned, rows.Err()
}
