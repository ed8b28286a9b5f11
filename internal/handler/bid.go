package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/service"
)

// BidHandler serves the reverse auction of barrack-bus sessions and
// driver ratings.
type BidHandler struct {
	Bids    *service.BidService
	Ratings *service.RatingService
}

func NewBidHandler(b *service.BidService, r *service.RatingService) *BidHandler {
	return &BidHandler{Bids: b, Ratings: r}
}

type placeBidReq struct {
	Price   uint32 `json:"price"`
	Message string `json:"message"`
}

type rateReq struct {
	SpeedScore  int    `json:"speed_score"`
	SafetyScore int    `json:"safety_score"`
	Comment     string `json:"comment"`
}

// Place records the caller's bid on a session.
func (h *BidHandler) Place(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req placeBidReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	bid, err := h.Bids.PlaceBid(c.Request().Context(), id, uid, req.Price, req.Message)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

// List returns a session's bids, cheapest first.
func (h *BidHandler) List(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	bids, err := h.Bids.ListBids(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bids)
}

// Accept accepts a bid and rejects the other pending ones.
func (h *BidHandler) Accept(c echo.Context) error { return h.resolve(c, true) }

// Reject rejects a single pending bid.
func (h *BidHandler) Reject(c echo.Context) error { return h.resolve(c, false) }

func (h *BidHandler) resolve(c echo.Context, accept bool) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.Bids.ResolveBid(c.Request().Context(), id, uid, accept)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Rate stores the caller's rating of a completed session's driver.
func (h *BidHandler) Rate(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req rateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	rt, err := h.Ratings.Rate(c.Request().Context(), id, uid, service.RatingInput{
		SpeedScore: req.SpeedScore, SafetyScore: req.SafetyScore, Comment: req.Comment,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rt)
}

// DriverRating returns a driver's aggregate rating.
func (h *BidHandler) DriverRating(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	sum, err := h.Ratings.Summary(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}
