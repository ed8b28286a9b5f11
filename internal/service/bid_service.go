package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gbus-app/gbus-server/internal/model"
	q "github.com/gbus-app/gbus-server/internal/queue"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/repository"
)

const maxBidMessageLen = 500

// BidService runs the reverse auction on barrack-bus sessions.
type BidService struct {
	repoSet
	deps  Deps
	guard sessionGuard
}

// PlaceBid records a driver's offer.  It fails with ErrNotAuction for
// fixed-price sessions, ErrSessionNotOpen once the session has closed and
// ErrBidExists when the driver already bid on this session.
func (s *BidService) PlaceBid(ctx context.Context, sessionID, driverID uint64, price uint32, message string) (model.Bid, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "bids", "place", "session_id", sessionID, "driver_id", driverID)
	var v ValidationError
	if price == 0 {
		v.add("price", "must be positive")
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxBidMessageLen {
		v.add("message", "too long")
	}
	if err := v.errOrNil(); err != nil {
		return model.Bid{}, err
	}
	if err := s.requireActive(ctx, driverID); err != nil {
		logResult(logger, "bid", err)
		return model.Bid{}, err
	}

	bid := model.Bid{SessionID: sessionID, DriverID: driverID, Price: price}
	if message != "" {
		bid.Message = &message
	}
	err := s.guard.run(ctx, sessionID, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetForUpdateTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.PriceType != model.PriceAuction {
			return repository.ErrNotAuction
		}
		if !sess.Status.Open() {
			return repository.ErrSessionNotOpen
		}
		if sess.DriverID == driverID {
			return repository.ErrForbidden
		}
		return s.bids.CreateTx(ctx, tx, &bid)
	})
	if err != nil {
		logResult(logger, "bid", err)
		return model.Bid{}, err
	}
	logger.Info("bid placed", "bid_id", bid.ID, "price", price)
	ev := q.NewEvent(q.EventBidPlaced)
	ev.SessionID, ev.UserID, ev.BidID = sessionID, driverID, bid.ID
	ev.Details = map[string]string{"price": strconv.FormatUint(uint64(price), 10)}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(sessionID, realtime.Message{Type: realtime.TypeBidPlaced, Data: bid})
	return bid, nil
}

// ListBids returns the bids of a session, cheapest first.
func (s *BidService) ListBids(ctx context.Context, sessionID uint64) ([]model.Bid, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.bids.ListBySession(ctx, sessionID)
}

// BidResolution is the outcome of accepting or rejecting a bid.
type BidResolution struct {
	Bid      model.Bid `json:"bid"`
	Rejected int64     `json:"rejected_others"`
}

// ResolveBid accepts or rejects a pending bid on behalf of the session
// owner.  At most one bid per session is ever accepted: accepting fails
// with ErrBidAlreadyAccepted when another bid won already, and a
// successful accept rejects every other pending bid in the same
// transaction.
func (s *BidService) ResolveBid(ctx context.Context, bidID, ownerID uint64, accept bool) (BidResolution, error) {
	logger := serviceLogger(ctx, s.deps.Logger, "bids", "resolve", "bid_id", bidID, "accept", accept)
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return BidResolution{}, err
	}
	var out BidResolution
	err = s.guard.run(ctx, bid.SessionID, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetForUpdateTx(ctx, tx, bid.SessionID)
		if err != nil {
			return err
		}
		if sess.DriverID != ownerID {
			return repository.ErrForbidden
		}
		cur, err := s.bids.GetByIDTx(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if accept {
			won, err := s.bids.HasAcceptedTx(ctx, tx, cur.SessionID)
			if err != nil {
				return err
			}
			if won {
				return repository.ErrBidAlreadyAccepted
			}
		}
		if cur.Status != model.BidPending {
			return repository.ErrInvalidTransition
		}
		target := model.BidRejected
		if accept {
			target = model.BidAccepted
		}
		ok, err := s.bids.SetStatusTx(ctx, tx, cur.ID, target)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrTransactionConflict
		}
		cur.Status = target
		out.Bid = cur
		if accept {
			out.Rejected, err = s.bids.RejectOthersTx(ctx, tx, cur.SessionID, cur.ID)
		}
		return err
	})
	if err != nil {
		logResult(logger, "resolve bid", err)
		return BidResolution{}, err
	}
	logger.Info("bid resolved", "status", out.Bid.Status, "rejected_others", out.Rejected)
	ev := q.NewEvent(q.EventBidResolved)
	ev.SessionID, ev.UserID, ev.BidID = out.Bid.SessionID, out.Bid.DriverID, out.Bid.ID
	ev.Details = map[string]string{"status": string(out.Bid.Status)}
	publishAfterCommit(ctx, s.deps.Publisher, logger, ev)
	s.deps.Notifier.Broadcast(out.Bid.SessionID, realtime.Message{Type: realtime.TypeBidResolved, Data: out})
	return out, nil
}
