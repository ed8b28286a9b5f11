package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gbus-app/gbus-server/internal/model"
)

// RatingRepo stores passenger ratings of drivers.
type RatingRepo struct{ db *sql.DB }

// NewRatingRepo returns a new RatingRepo bound to the given database.
func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

// Create inserts a rating.  One rating per (session, rater) is allowed;
// a second one yields ErrConflict.
func (r *RatingRepo) Create(ctx context.Context, rt *model.DriverRating) error {
	rt.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO driver_ratings (session_id, driver_id, rater_id, speed_score, safety_score, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rt.SessionID, rt.DriverID, rt.RaterID, rt.SpeedScore, rt.SafetyScore, rt.Comment, rt.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	return nil
}

// Summary aggregates all ratings of a driver.
func (r *RatingRepo) Summary(ctx context.Context, driverID uint64) (model.RatingSummary, error) {
	var (
		sum    = model.RatingSummary{DriverID: driverID}
		speed  sql.NullFloat64
		safety sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(speed_score), AVG(safety_score) FROM driver_ratings WHERE driver_id = ?`,
		driverID).Scan(&sum.Count, &speed, &safety)
	if err != nil {
		return model.RatingSummary{}, err
	}
	sum.SpeedAvg = speed.Float64
	sum.SafetyAvg = safety.Float64
	return sum, nil
}
