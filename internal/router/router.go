// Package router registers the HTTP routes of the API.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/cache"
	"github.com/gbus-app/gbus-server/internal/config"
	"github.com/gbus-app/gbus-server/internal/handler"
	"github.com/gbus-app/gbus-server/internal/middleware"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/repository"
	"github.com/gbus-app/gbus-server/internal/service"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers authentication routes.  Token issuing lives under
// /v1/auth; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(allRoles...))
}

// RegisterPublic registers browse endpoints that need no token.  The
// catalog and session listing go through the response cache; the board is
// always served live.
func RegisterPublic(e *echo.Echo, s *handler.SessionHandler, b *handler.BidHandler, responseCache echo.MiddlewareFunc) {
	e.GET("/v1/dungeons", handler.Dungeons, responseCache)
	e.GET("/v1/sessions", s.List, responseCache)
	e.GET("/v1/sessions/:id", s.Board)
	e.GET("/v1/sessions/:id/ws", s.Watch)
	e.GET("/v1/sessions/:id/bids", b.List)
	e.GET("/v1/drivers/:id/rating", b.DriverRating)
}

// Deps is everything Setup needs to mount the API.
type Deps struct {
	Cfg      config.Config
	DB       *sql.DB
	Services *service.Services
	Profiles *cache.Profiles
	Hub      *realtime.Hub
	// Limiter and Cache default to pass-through middleware when nil.
	Limiter echo.MiddlewareFunc
	Cache   echo.MiddlewareFunc
}

// Setup builds the handlers and registers every route group on e.
func Setup(e *echo.Echo, d Deps) {
	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if d.Limiter == nil {
		d.Limiter = pass
	}
	if d.Cache == nil {
		d.Cache = pass
	}
	secret := d.Cfg.JWTSecret
	auth := handler.NewAuthHandler(d.Cfg, repository.NewUserRepo(d.DB), repository.NewTokenRepo(d.DB), d.Profiles)
	sessions := handler.NewSessionHandler(d.Services.Queue, d.Hub, secret)
	bids := handler.NewBidHandler(d.Services.Bids, d.Services.Ratings)
	accounts := handler.NewAccountHandler(d.Services.Accounts, d.Services.Moderation)

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, auth, secret)
	RegisterPublic(e, sessions, bids, d.Cache)
	RegisterMember(e, sessions, bids, accounts, secret, d.Limiter)
	RegisterAdmin(e, sessions, accounts, secret)
}
