package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/utils"
)

const userColumns = `id, email, password_hash, role, nickname, game_nickname, game_server,
	verified, honor_score, noshow_count, suspended_until, created_at, updated_at`

// UserRepo persists accounts, game profiles and reputation fields.
type UserRepo struct {
	db   *sql.DB
	lock string
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db, lock: lockClause(db)} }

// Create inserts a user with the given starting honor score and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int, honor int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, honor_score, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		email, hash, role, honor, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u         model.User
		server    sql.NullString
		suspended sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Nickname, &u.GameNickname, &server,
		&u.Verified, &u.HonorScore, &u.NoShowCount, &suspended, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if server.Valid {
		v := server.String
		u.GameServer = &v
	}
	if suspended.Valid {
		v := suspended.Time.UTC()
		u.SuspendedUntil = &v
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1`, email))
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1`, id))
	return u, notFound(err)
}

// GetByIDTx loads and locks a user row inside tx.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=?`+r.lock, id))
	return u, notFound(err)
}

// List returns users newest first.  When unverifiedOnly is set only
// accounts awaiting verification are returned.
func (r *UserRepo) List(ctx context.Context, unverifiedOnly bool) ([]model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	if unverifiedOnly {
		q += ` WHERE verified = 0`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateProfile stores the profile fields a user fills in after signup.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, nickname, gameNickname string, gameServer *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET nickname=?, game_nickname=?, game_server=?, updated_at=? WHERE id=?`,
		nickname, gameNickname, gameServer, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// SetVerified marks a user as verified by staff.
func (r *UserRepo) SetVerified(ctx context.Context, id uint64, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified=?, updated_at=? WHERE id=?`, verified, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// SetRole changes a user's role.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET role=?, updated_at=? WHERE id=?`, role, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// ApplyNoShowTx increments noshow_count and deducts penalty from
// honor_score, floored at zero, in a single statement.
func (r *UserRepo) ApplyNoShowTx(ctx context.Context, tx *sql.Tx, id uint64, penalty int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users
		    SET noshow_count = noshow_count + 1,
		        honor_score = CASE WHEN honor_score > ? THEN honor_score - ? ELSE 0 END,
		        updated_at = ?
		  WHERE id = ?`,
		penalty, penalty, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// DeductHonorTx deducts penalty from honor_score, floored at zero.
func (r *UserRepo) DeductHonorTx(ctx context.Context, tx *sql.Tx, id uint64, penalty int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users
		    SET honor_score = CASE WHEN honor_score > ? THEN honor_score - ? ELSE 0 END,
		        updated_at = ?
		  WHERE id = ?`,
		penalty, penalty, time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

// SuspendUntilTx sets suspended_until for a user.
func (r *UserRepo) SuspendUntilTx(ctx context.Context, tx *sql.Tx, id uint64, until time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET suspended_until=?, updated_at=? WHERE id=?`, until.UTC(), time.Now().UTC(), id)
	return affectedOrNotFound(res, err)
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
