package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/service"
	"github.com/gbus-app/gbus-server/internal/utils"
)

// SessionHandler serves the session registry, the queue board and the
// queue operations of drivers and passengers.
type SessionHandler struct {
	Queue     *service.QueueService
	Hub       *realtime.Hub
	JWTSecret string
}

func NewSessionHandler(q *service.QueueService, hub *realtime.Hub, jwtSecret string) *SessionHandler {
	return &SessionHandler{Queue: q, Hub: hub, JWTSecret: jwtSecret}
}

type createSessionReq struct {
	Title           string          `json:"title"`
	DungeonName     string          `json:"dungeon_name"`
	PostType        model.PostType  `json:"post_type"`
	PriceType       model.PriceType `json:"price_type"`
	Price           *uint32         `json:"price"`
	MinCount        uint32          `json:"min_count"`
	AvgRoundMinutes uint32          `json:"avg_round_minutes"`
}

type statusReq struct {
	Status model.SessionStatus `json:"status"`
}

type reserveReq struct {
	CharNames []string `json:"char_names"`
}

type callNextReq struct {
	ExpectedReservationID *uint64 `json:"expected_reservation_id"`
}

type noShowReq struct {
	Penalty *int `json:"penalty"`
}

// List returns sessions filtered by ?status=a,b (open ones by default).
func (h *SessionHandler) List(c echo.Context) error {
	var statuses []model.SessionStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, model.SessionStatus(strings.ToLower(s)))
		}
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.Queue.ListSessions(c.Request().Context(), statuses, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Board returns a session with its queue.
func (h *SessionHandler) Board(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.Queue.Board(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Watch upgrades to a WebSocket that streams the session's deltas.  A
// ?token= access token is optional and only enables personal queue alerts.
func (h *SessionHandler) Watch(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if _, err := h.Queue.Board(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	var uid uint64
	if raw := c.QueryParam("token"); raw != "" {
		if uid, _, err = utils.ParseAccessToken(h.JWTSecret, raw); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
	}
	if err := h.Hub.Serve(c.Response(), c.Request(), id, uid); err != nil {
		handlerLogger(c).Warn("websocket upgrade failed", "session_id", id, "error", err)
	}
	return nil
}

// Create opens a new session owned by the caller.
func (h *SessionHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.Queue.CreateSession(c.Request().Context(), uid, service.CreateSessionInput{
		Title:           req.Title,
		DungeonName:     req.DungeonName,
		PostType:        model.PostType(strings.ToLower(string(req.PostType))),
		PriceType:       model.PriceType(strings.ToLower(string(req.PriceType))),
		Price:           req.Price,
		MinCount:        req.MinCount,
		AvgRoundMinutes: req.AvgRoundMinutes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// UpdateStatus lets the driver move the session forward.
func (h *SessionHandler) UpdateStatus(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.Queue.UpdateStatus(c.Request().Context(), id, uid, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// OverrideStatus is the admin escape hatch: any target status.
func (h *SessionHandler) OverrideStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	sess, err := h.Queue.OverrideStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// AdvanceRound bumps the round counter.
func (h *SessionHandler) AdvanceRound(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	sess, err := h.Queue.AdvanceRound(c.Request().Context(), id, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// CallNext advances the queue.  The body is optional; after a no-show the
// driver confirms with {"expected_reservation_id": 0}.
func (h *SessionHandler) CallNext(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req callNextReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badBody(c)
		}
	}
	res, err := h.Queue.CallNext(c.Request().Context(), id, uid, req.ExpectedReservationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// MarkNoShow penalizes the owner of the called reservation.
func (h *SessionHandler) MarkNoShow(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req noShowReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badBody(c)
		}
	}
	res, err := h.Queue.MarkNoShow(c.Request().Context(), id, uid, req.Penalty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Reserve admits a batch of the caller's characters.
func (h *SessionHandler) Reserve(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	list, err := h.Queue.ReserveBulk(c.Request().Context(), id, uid, req.CharNames)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservations": list})
}

// MyReservations lists the caller's live reservations with ETA.
func (h *SessionHandler) MyReservations(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := h.Queue.MyReservations(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
