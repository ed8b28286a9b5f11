package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/repository"
)

// RatingService collects passenger ratings of drivers.
type RatingService struct {
	repoSet
	deps Deps
}

// RatingInput holds the scores a passenger gives a driver.
type RatingInput struct {
	SpeedScore  int
	SafetyScore int
	Comment     string
}

// Rate stores raterID's rating of the driver of a completed session.  Only
// passengers who held a reservation in the session may rate, once.
func (s *RatingService) Rate(ctx context.Context, sessionID, raterID uint64, in RatingInput) (model.DriverRating, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "ratings", "rate", "session_id", sessionID, "rater_id", raterID)
	in.Comment = strings.TrimSpace(in.Comment)
	var v ValidationError
	if in.SpeedScore < 1 || in.SpeedScore > 5 {
		v.add("speed_score", "must be between 1 and 5")
	}
	if in.SafetyScore < 1 || in.SafetyScore > 5 {
		v.add("safety_score", "must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Comment) > maxReasonLen {
		v.add("comment", "too long")
	}
	if err := v.errOrNil(); err != nil {
		return model.DriverRating{}, err
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return model.DriverRating{}, err
	}
	if sess.Status != model.SessionCompleted {
		return model.DriverRating{}, repository.ErrSessionNotCompleted
	}
	if sess.DriverID == raterID {
		return model.DriverRating{}, repository.ErrForbidden
	}
	rode, err := s.reservations.HasReservation(ctx, sessionID, raterID)
	if err != nil {
		return model.DriverRating{}, err
	}
	if !rode {
		return model.DriverRating{}, repository.ErrForbidden
	}
	rt := model.DriverRating{
		SessionID:   sessionID,
		DriverID:    sess.DriverID,
		RaterID:     raterID,
		SpeedScore:  uint8(in.SpeedScore),
		SafetyScore: uint8(in.SafetyScore),
	}
	if in.Comment != "" {
		rt.Comment = &in.Comment
	}
	if err := s.ratings.Create(ctx, &rt); err != nil {
		logResult(logger, "rate", err)
		return model.DriverRating{}, err
	}
	logger.Info("driver rated", "driver_id", rt.DriverID)
	return rt, nil
}

// Summary returns the aggregate rating of a driver.
func (s *RatingService) Summary(ctx context.Context, driverID uint64) (model.RatingSummary, error) {
	if _, err := s.users.GetByID(ctx, driverID); err != nil {
		return model.RatingSummary{}, err
	}
	return s.ratings.Summary(ctx, driverID)
}
