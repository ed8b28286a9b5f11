package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gbus-app/gbus-server/internal/model"
	q "github.com/gbus-app/gbus-server/internal/queue"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/repository"
)

const (
	maxBatchSize     = 50
	maxCharNameLen   = 64
	maxTitleLen      = 120
	admissionRetries = 3
)

// QueueService owns the session registry and the queue ledger: session
// lifecycle, bulk admission, call-next advancement and no-show handling.
type QueueService struct {
	repoSet
	deps  Deps
	opts  Options
	guard sessionGuard
}

// CreateSessionInput is the driver-supplied part of a new session.
type CreateSessionInput struct {
	Title           string
	DungeonName     string
	PostType        model.PostType
	PriceType       model.PriceType
	Price           *uint32
	MinCount        uint32
	AvgRoundMinutes uint32
}

// CreateSession opens a new waiting session owned by driverID.
func (s *QueueService) CreateSession(ctx context.Context, driverID uint64, in CreateSessionInput) (model.Session, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "create_session", "driver_id", driverID)

	in.Title = strings.TrimSpace(in.Title)
	in.DungeonName = strings.TrimSpace(in.DungeonName)
	if in.PostType == "" {
		in.PostType = model.PostBus
	}
	if in.PriceType == "" {
		in.PriceType = model.PriceFixed
	}
	var v ValidationError
	if in.Title == "" {
		v.add("title", "required")
	} else if utf8.RuneCountInString(in.Title) > maxTitleLen {
		v.add("title", "too long")
	}
	if in.DungeonName == "" {
		v.add("dungeon_name", "required")
	}
	if !in.PostType.Valid() {
		v.add("post_type", "must be party, bus or barrack_bus")
	}
	if !in.PriceType.Valid() {
		v.add("price_type", "must be fixed or auction")
	}
	if in.PriceType == model.PriceAuction && in.Price != nil {
		v.add("price", "auction sessions take their price from bids")
	}
	if err := v.errOrNil(); err != nil {
		return model.Session{}, err
	}
	if err := s.requireActive(ctx, driverID); err != nil {
		logResult(logger, "create session", err)
		return model.Session{}, err
	}

	sess := model.Session{
		DriverID:        driverID,
		Title:           in.Title,
		DungeonName:     in.DungeonName,
		PostType:        in.PostType,
		PriceType:       in.PriceType,
		Price:           in.Price,
		MinCount:        in.MinCount,
		AvgRoundMinutes: in.AvgRoundMinutes,
	}
	if sess.MinCount == 0 {
		sess.MinCount = model.DefaultMinCount(in.PostType, in.DungeonName)
	}
	if sess.AvgRoundMinutes == 0 {
		sess.AvgRoundMinutes = 10
	}
	if err := s.sessions.Create(ctx, &sess); err != nil {
		logResult(logger, "create session", err)
		return model.Session{}, err
	}
	logger.Info("session created", "session_id", sess.ID, "post_type", sess.PostType)
	return sess, nil
}

// ListSessions returns sessions in the given statuses, open ones by default.
func (s *QueueService) ListSessions(ctx context.Context, statuses []model.SessionStatus, limit int) ([]model.Session, error) {
	for _, st := range statuses {
		if !st.Valid() {
			var v ValidationError
			v.add("status", "unknown status "+strconv.Quote(string(st)))
			return nil, &v
		}
	}
	return s.sessions.List(ctx, statuses, limit)
}

// Board is the public queue board of one session.
type Board struct {
	Session      model.Session       `json:"session"`
	DriverAlias  string              `json:"driver_alias"`
	Called       *model.Reservation  `json:"called"`
	WaitingCount int                 `json:"waiting_count"`
	DoneCount    int                 `json:"done_count"`
	Reservations []model.Reservation `json:"reservations"`
}

// Board returns the session together with its reservations in queue order.
func (s *QueueService) Board(ctx context.Context, sessionID uint64) (Board, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return Board{}, err
	}
	list, err := s.reservations.ListBySession(ctx, sessionID)
	if err != nil {
		return Board{}, err
	}
	b := Board{Session: sess, DriverAlias: model.AnonymousName(sess.ID), Reservations: list}
	for i := range list {
		switch list[i].Status {
		case model.ReservationCalled:
			called := list[i]
			b.Called = &called
		case model.ReservationWaiting:
			b.WaitingCount++
		case model.ReservationDone:
			b.DoneCount++
		}
	}
	return b, nil
}

// MyReservations lists the caller's live reservations with position and ETA.
func (s *QueueService) MyReservations(ctx context.Context, userID uint64) ([]model.QueuePosition, error) {
	return s.reservations.ListActiveByUser(ctx, userID)
}

// normalizeNames trims names and rejects empty, oversized and duplicate
// entries.  Input order is preserved.
func normalizeNames(names []string) ([]string, error) {
	var v ValidationError
	if len(names) == 0 {
		v.add("char_names", "at least one character is required")
		return nil, &v
	}
	if len(names) > maxBatchSize {
		v.add("char_names", fmt.Sprintf("at most %d characters per request", maxBatchSize))
		return nil, &v
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			v.add("char_names", "names must not be empty")
			return nil, &v
		}
		if utf8.RuneCountInString(n) > maxCharNameLen {
			v.add("char_names", "name too long")
			return nil, &v
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: %s", repository.ErrDuplicateCharacter, n)
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// ReserveBulk admits a batch of the caller's barrack characters into a
// session queue.  Either every name receives the next queue number in
// input order or nothing is written.  A lost numbering race is retried
// internally before ErrTransactionConflict is surfaced.
func (s *QueueService) ReserveBulk(ctx context.Context, sessionID, userID uint64, names []string) ([]model.Reservation, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "reserve_bulk",
		"session_id", sessionID, "user_id", userID, "count", len(names))

	names, err := normalizeNames(names)
	if err != nil {
		logResult(logger, "reserve", err)
		return nil, err
	}
	if err := s.requireActive(ctx, userID); err != nil {
		logResult(logger, "reserve", err)
		return nil, err
	}

	var (
		created []model.Reservation
		count   uint32
	)
	for attempt := 1; ; attempt++ {
		created, count, err = s.admit(ctx, sessionID, userID, names)
		if err == nil || !repository.Retryable(err) || attempt >= admissionRetries {
			break
		}
		logger.Debug("admission conflict, retrying", "attempt", attempt)
	}
	if err != nil {
		logResult(logger, "reserve", err)
		return nil, err
	}
	logger.Info("reservations admitted",
		"first_queue_no", created[0].QueueNo, "last_queue_no", created[len(created)-1].QueueNo)

	ev := q.NewEvent(q.EventReservationsAdmitted)
	ev.SessionID, ev.UserID = sessionID, userID
	ev.Details = map[string]string{
		"count":          strconv.Itoa(len(created)),
		"first_queue_no": strconv.FormatUint(uint64(created[0].QueueNo), 10),
	}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{Type: realtime.TypeReservationsAdmitted, Data: created})
	s.broadcastCount(sessionID, count)
	return created, nil
}

func (s *QueueService) admit(ctx context.Context, sessionID, userID uint64, names []string) ([]model.Reservation, uint32, error) {
	var (
		created []model.Reservation
		count   uint32
	)
	err := s.guard.run(ctx, sessionID, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetForUpdateTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !sess.Status.Open() {
			return repository.ErrSessionNotOpen
		}
		owned, err := s.barracks.OwnedNamesTx(ctx, tx, userID, names)
		if err != nil {
			return err
		}
		for _, n := range names {
			if !owned[n] {
				return fmt.Errorf("%w: %s", repository.ErrCharacterNotInBarrack, n)
			}
		}
		taken, err := s.reservations.ReservedNamesTx(ctx, tx, sessionID, names)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("%w: %s", repository.ErrCharacterAlreadyReserved, strings.Join(taken, ", "))
		}
		top, err := s.reservations.MaxQueueNoTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		created = make([]model.Reservation, 0, len(names))
		for i, n := range names {
			res := model.Reservation{SessionID: sessionID, UserID: userID, CharName: n, QueueNo: top + uint32(i) + 1}
			if err := s.reservations.CreateTx(ctx, tx, &res); err != nil {
				return err
			}
			created = append(created, res)
		}
		count, err = s.sessions.RecountTx(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return created, count, nil
}

// CallNextResult reports what a call-next changed.
type CallNextResult struct {
	Done   *model.Reservation `json:"done"`
	Called *model.Reservation `json:"called"`
}

// CallNext finishes the currently called reservation, if any, and calls
// the waiting reservation with the lowest queue number.  When expected is
// non-nil the caller asserts which reservation it believes is called, 0
// meaning none; if that is no longer true the call fails with
// ErrReservationNotCalled and changes nothing.  Without expected, a queue
// whose called reservation was just marked no-show also fails with
// ErrReservationNotCalled: the caller has to confirm with expected 0.
func (s *QueueService) CallNext(ctx context.Context, sessionID, driverID uint64, expected *uint64) (CallNextResult, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "call_next", "session_id", sessionID, "driver_id", driverID)

	var (
		result CallNextResult
		alerts []model.Reservation
		count  uint32
	)
	err := s.guard.run(ctx, sessionID, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetForUpdateTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.DriverID != driverID {
			return repository.ErrForbidden
		}
		if !sess.Status.Open() {
			return repository.ErrSessionNotOpen
		}
		current, hasCurrent, err := s.reservations.CalledTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case expected != nil:
			var calledID uint64
			if hasCurrent {
				calledID = current.ID
			}
			if *expected != calledID {
				return repository.ErrReservationNotCalled
			}
		case !hasCurrent:
			last, resolved, err := s.reservations.LastResolvedTx(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if resolved && last.Status == model.ReservationNoShow {
				return repository.ErrReservationNotCalled
			}
		}
		if hasCurrent {
			ok, err := s.reservations.TransitionTx(ctx, tx, current.ID, model.ReservationCalled, model.ReservationDone)
			if err != nil {
				return err
			}
			if !ok {
				return repository.ErrTransactionConflict
			}
			current.Status = model.ReservationDone
			result.Done = &current
		}
		next, hasNext, err := s.reservations.NextWaitingTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if hasNext {
			ok, err := s.reservations.TransitionTx(ctx, tx, next.ID, model.ReservationWaiting, model.ReservationCalled)
			if err != nil {
				return err
			}
			if !ok {
				return repository.ErrTransactionConflict
			}
			next.Status = model.ReservationCalled
			result.Called = &next
			if s.opts.AlertBefore > 0 {
				alerts, err = s.reservations.WaitingWithinTx(ctx, tx, sessionID, next.QueueNo, uint32(s.opts.AlertBefore))
				if err != nil {
					return err
				}
			}
		}
		count, err = s.sessions.RecountTx(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		logResult(logger, "call next", err)
		return CallNextResult{}, err
	}

	ev := q.NewEvent(q.EventQueueCalled)
	ev.SessionID = sessionID
	ev.Details = map[string]string{}
	if result.Done != nil {
		ev.Details["done_queue_no"] = strconv.FormatUint(uint64(result.Done.QueueNo), 10)
	}
	if result.Called != nil {
		ev.ReservationID, ev.UserID = result.Called.ID, result.Called.UserID
		ev.Details["called_queue_no"] = strconv.FormatUint(uint64(result.Called.QueueNo), 10)
		logger.Info("queue advanced", "called_queue_no", result.Called.QueueNo)
	} else {
		logger.Info("queue advanced, nobody waiting")
	}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{Type: realtime.TypeQueueCalled, Data: result})
	if result.Called != nil {
		s.sendAlerts(sessionID, result.Called.QueueNo, alerts)
	}
	s.broadcastCount(sessionID, count)
	return result, nil
}

// QueueAlert tells a passenger their character is close to being called.
type QueueAlert struct {
	ReservationID uint64 `json:"reservation_id"`
	CharName      string `json:"char_name"`
	QueueNo       uint32 `json:"queue_no"`
	CalledNo      uint32 `json:"called_no"`
	Ahead         uint32 `json:"ahead"`
}

func (s *QueueService) sendAlerts(sessionID uint64, calledNo uint32, alerts []model.Reservation) {
	for _, r := range alerts {
		s.deps.Notifier.Notify(sessionID, r.UserID, realtime.Message{
			Type: realtime.TypeQueueAlert,
			Data: QueueAlert{ReservationID: r.ID, CharName: r.CharName, QueueNo: r.QueueNo, CalledNo: calledNo, Ahead: r.QueueNo - calledNo},
		})
	}
}

// MarkNoShow marks the called reservation as a no-show and penalizes its
// owner: noshow_count is incremented and honor_score drops by penalty,
// floored at zero.  A nil penaltyOverride uses the configured penalty; an
// explicit zero records the no-show without deducting honor.  When
// the reservation is no longer called (for example because call-next won
// a race) it fails with ErrReservationNotCalled and changes nothing.
func (s *QueueService) MarkNoShow(ctx context.Context, reservationID, driverID uint64, penaltyOverride *int) (model.Reservation, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "mark_noshow",
		"reservation_id", reservationID, "driver_id", driverID)
	penalty := s.opts.NoShowPenalty
	if penaltyOverride != nil {
		if *penaltyOverride < 0 {
			var v ValidationError
			v.add("penalty", "must not be negative")
			return model.Reservation{}, &v
		}
		penalty = *penaltyOverride
	}
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	var count uint32
	err = s.guard.run(ctx, res.SessionID, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetForUpdateTx(ctx, tx, res.SessionID)
		if err != nil {
			return err
		}
		if sess.DriverID != driverID {
			return repository.ErrForbidden
		}
		cur, err := s.reservations.GetByIDTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if cur.Status != model.ReservationCalled {
			return repository.ErrReservationNotCalled
		}
		ok, err := s.reservations.TransitionTx(ctx, tx, cur.ID, model.ReservationCalled, model.ReservationNoShow)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrReservationNotCalled
		}
		if err := s.users.ApplyNoShowTx(ctx, tx, cur.UserID, penalty); err != nil {
			return err
		}
		res = cur
		res.Status = model.ReservationNoShow
		count, err = s.sessions.RecountTx(ctx, tx, cur.SessionID)
		return err
	})
	if err != nil {
		logResult(logger, "no-show", err)
		return model.Reservation{}, err
	}
	logger.Info("no-show recorded", "user_id", res.UserID, "penalty", penalty)
	s.deps.Profiles.Invalidate(ctx, res.UserID)

	ev := q.NewEvent(q.EventReservationNoShow)
	ev.SessionID, ev.UserID, ev.ReservationID = res.SessionID, res.UserID, res.ID
	ev.Details = map[string]string{"char_name": res.CharName, "penalty": strconv.Itoa(penalty)}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(res.SessionID, realtime.Message{Type: realtime.TypeReservationNoShow, Data: res})
	s.broadcastCount(res.SessionID, count)
	return res, nil
}

// UpdateStatus moves a session forward on behalf of its driver.
func (s *QueueService) UpdateStatus(ctx context.Context, sessionID, driverID uint64, status model.SessionStatus) (model.Session, error) {
	return s.setStatus(ctx, sessionID, status, func(sess model.Session) error {
		if sess.DriverID != driverID {
			return repository.ErrForbidden
		}
		if !sess.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, sess.Status, status)
		}
		return nil
	})
}

// OverrideStatus sets any status on a session.  It is reserved for admins.
func (s *QueueService) OverrideStatus(ctx context.Context, sessionID uint64, status model.SessionStatus) (model.Session, error) {
	return s.setStatus(ctx, sessionID, status, func(model.Session) error { return nil })
}

func (s *QueueService) setStatus(ctx context.Context, sessionID uint64, status model.SessionStatus, allow func(model.Session) error) (model.Session, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "set_status", "session_id", sessionID, "status", status)
	if !status.Valid() {
		var v ValidationError
		v.add("status", "must be waiting, running, completed or cancelled")
		return model.Session{}, &v
	}
	var (
		sess model.Session
		from model.SessionStatus
	)
	err := s.guard.run(ctx, sessionID, func(tx *sql.Tx) error {
		var err error
		sess, err = s.sessions.GetForUpdateTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := allow(sess); err != nil {
			return err
		}
		from = sess.Status
		if err := s.sessions.SetStatusTx(ctx, tx, sessionID, status); err != nil {
			return err
		}
		sess.Status = status
		return nil
	})
	if err != nil {
		logResult(logger, "status change", err)
		return model.Session{}, err
	}
	logger.Info("session status changed", "from", from)
	ev := q.NewEvent(q.EventSessionStatus)
	ev.SessionID, ev.UserID = sess.ID, sess.DriverID
	ev.Details = map[string]string{"from": string(from), "to": string(status)}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{Type: realtime.TypeSessionUpdated, Data: sess})
	return sess, nil
}

// AdvanceRound increments the round counter of an open session.
func (s *QueueService) AdvanceRound(ctx context.Context, sessionID, driverID uint64) (model.Session, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "queue", "advance_round", "session_id", sessionID)
	var sess model.Session
	err := s.guard.run(ctx, sessionID, func(tx *sql.Tx) error {
		var err error
		sess, err = s.sessions.GetForUpdateTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.DriverID != driverID {
			return repository.ErrForbidden
		}
		if !sess.Status.Open() {
			return repository.ErrSessionNotOpen
		}
		if err := s.sessions.IncrementRoundTx(ctx, tx, sessionID); err != nil {
			return err
		}
		sess.Round++
		return nil
	})
	if err != nil {
		logResult(logger, "advance round", err)
		return model.Session{}, err
	}
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{Type: realtime.TypeSessionUpdated, Data: sess})
	return sess, nil
}

type countDelta struct {
	SessionID    uint64 `json:"session_id"`
	CurrentCount uint32 `json:"current_count"`
}

func (s *QueueService) broadcastCount(sessionID uint64, count uint32) {
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{
		Type: realtime.TypeSessionUpdated,
		Data: countDelta{SessionID: sessionID, CurrentCount: count},
	})
}

// IsNotCalled reports whether err means a reservation had already left
// the called state.  Callers treat it as benign: someone else handled it.
func IsNotCalled(err error) bool {
	return errors.Is(err, repository.ErrReservationNotCalled)
}
