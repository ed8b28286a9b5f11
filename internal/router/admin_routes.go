package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/handler"
	"github.com/gbus-app/gbus-server/internal/middleware"
	"github.com/gbus-app/gbus-server/internal/model"
)

// RegisterAdmin registers the staff console under /v1/admin.  Moderators
// handle reports and verification; role changes and status overrides are
// admin only.
func RegisterAdmin(e *echo.Echo, s *handler.SessionHandler, a *handler.AccountHandler, jwtSecret string) {
	staff := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleModerator, model.RoleAdmin),
	)
	staff.GET("/reports", a.ListReports)
	staff.POST("/reports/:id/resolve", a.ResolveReport)
	staff.GET("/users", a.ListUsers)
	staff.POST("/users/:id/verify", a.Verify)

	admin := staff.Group("", middleware.RequireRole(model.RoleAdmin))
	admin.PATCH("/users/:id/role", a.SetRole)
	admin.PATCH("/sessions/:id/status", s.OverrideStatus)
}
