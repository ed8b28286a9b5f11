package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/handler"
	"github.com/gbus-app/gbus-server/internal/middleware"
	"github.com/gbus-app/gbus-server/internal/model"
)

var allRoles = []string{model.RoleUser, model.RoleModerator, model.RoleAdmin}

// RegisterMember registers endpoints for any signed-in user under /v1.
// Drivers are simply the owners of a session; ownership is checked by the
// services, not by role.
func RegisterMember(e *echo.Echo, s *handler.SessionHandler, b *handler.BidHandler, a *handler.AccountHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(allRoles...),
		limiter,
	)

	// ---- Profile & barrack ----
	g.PUT("/me/profile", a.UpdateProfile)
	g.GET("/barrack", a.Barrack)
	g.POST("/barrack", a.AddToBarrack)
	g.DELETE("/barrack/:id", a.RemoveFromBarrack)

	// ---- Sessions (driver) ----
	g.POST("/sessions", s.Create)
	g.PATCH("/sessions/:id/status", s.UpdateStatus)
	g.POST("/sessions/:id/round", s.AdvanceRound)
	g.POST("/sessions/:id/call-next", s.CallNext)
	g.POST("/reservations/:id/noshow", s.MarkNoShow)

	// ---- Reservations (passenger) ----
	g.POST("/sessions/:id/reservations", s.Reserve)
	g.GET("/my-reservations", s.MyReservations)

	// ---- Bids & ratings ----
	g.POST("/sessions/:id/bids", b.Place)
	g.POST("/bids/:id/accept", b.Accept)
	g.POST("/bids/:id/reject", b.Reject)
	g.POST("/sessions/:id/rating", b.Rate)

	g.POST("/reports", a.Report)
}
