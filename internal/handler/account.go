package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/service"
)

// AccountHandler serves profiles, barracks, reports and the staff console.
type AccountHandler struct {
	Accounts   *service.AccountService
	Moderation *service.ModerationService
}

func NewAccountHandler(a *service.AccountService, m *service.ModerationService) *AccountHandler {
	return &AccountHandler{Accounts: a, Moderation: m}
}

type profileReq struct {
	Nickname     string `json:"nickname"`
	GameNickname string `json:"game_nickname"`
	GameServer   string `json:"game_server"`
}

// barrackReq accepts either a single name or a list.
type barrackReq struct {
	Name  string   `json:"name"`
	Names []string `json:"names"`
}

type reportReq struct {
	ReportedID uint64  `json:"reported_id"`
	SessionID  *uint64 `json:"session_id"`
	Category   string  `json:"category"`
	Reason     string  `json:"reason"`
}

type resolveReq struct {
	Status      model.ReportStatus `json:"status"`
	Note        string             `json:"note"`
	SuspendDays int                `json:"suspend_days"`
}

type verifyReq struct {
	Verified *bool `json:"verified"`
}

type roleReq struct {
	Role string `json:"role"`
}

// UpdateProfile completes the caller's profile.
func (h *AccountHandler) UpdateProfile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	err = h.Accounts.UpdateProfile(c.Request().Context(), uid, service.ProfileInput{
		Nickname: req.Nickname, GameNickname: req.GameNickname, GameServer: req.GameServer,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Barrack lists the caller's characters.
func (h *AccountHandler) Barrack(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := h.Accounts.Barrack(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// AddToBarrack appends one or many characters.
func (h *AccountHandler) AddToBarrack(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req barrackReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	names := req.Names
	if req.Name != "" {
		names = append([]string{req.Name}, names...)
	}
	added, err := h.Accounts.AddToBarrack(c.Request().Context(), uid, names)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, added)
}

// RemoveFromBarrack deletes one of the caller's characters.
func (h *AccountHandler) RemoveFromBarrack(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Accounts.RemoveFromBarrack(c.Request().Context(), uid, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Report files a complaint against another user.
func (h *AccountHandler) Report(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req reportReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	rp, err := h.Moderation.CreateReport(c.Request().Context(), uid, service.ReportInput{
		ReportedID: req.ReportedID, SessionID: req.SessionID, Category: req.Category, Reason: req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rp)
}

// ListReports returns reports filtered by ?status=.
func (h *AccountHandler) ListReports(c echo.Context) error {
	status := model.ReportStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status"))))
	list, err := h.Moderation.ListReports(c.Request().Context(), status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// ResolveReport records a staff decision on a pending report.
func (h *AccountHandler) ResolveReport(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req resolveReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	rp, err := h.Moderation.ResolveReport(c.Request().Context(), id, uid, service.ResolveInput{
		Status: model.ReportStatus(strings.ToLower(string(req.Status))), Note: req.Note, SuspendDays: req.SuspendDays,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rp)
}

// ListUsers returns accounts; ?unverified=true narrows to pending ones.
func (h *AccountHandler) ListUsers(c echo.Context) error {
	unverified := c.QueryParam("unverified") == "true" || c.QueryParam("unverified") == "1"
	list, err := h.Accounts.ListUsers(c.Request().Context(), unverified)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Verify marks a user verified, or unverified with {"verified": false}.
func (h *AccountHandler) Verify(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req verifyReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badBody(c)
		}
	}
	verified := req.Verified == nil || *req.Verified
	if err := h.Accounts.SetVerified(c.Request().Context(), uid, id, verified); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRole changes a user's role.
func (h *AccountHandler) SetRole(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := h.Accounts.SetRole(c.Request().Context(), uid, id, req.Role); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
