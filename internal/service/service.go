// Package service implements the G-BUS business operations on top of the
// repositories.  Every queue or bid mutation of a session runs under the
// session's lock inside one database transaction; events and realtime
// deltas are emitted only after the transaction commits.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gbus-app/gbus-server/internal/config"
	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/repository"
)

// ProfileInvalidator drops cached profiles after a user row changes.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, userID uint64)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, uint64) {}

// Options carries the tunables services read from configuration.
type Options struct {
	NoShowPenalty int
	WarnPenalty   int
	AlertBefore   int
	LockWait      time.Duration
}

// OptionsFromConfig extracts service options from the application config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		NoShowPenalty: cfg.NoShowPenalty,
		WarnPenalty:   cfg.WarnPenalty,
		AlertBefore:   cfg.QueueAlertBefore,
		LockWait:      cfg.SessionLockTTL,
	}
}

func (o Options) withDefaults() Options {
	if o.NoShowPenalty <= 0 {
		o.NoShowPenalty = 10
	}
	if o.WarnPenalty <= 0 {
		o.WarnPenalty = 10
	}
	if o.AlertBefore < 0 {
		o.AlertBefore = 0
	}
	if o.LockWait <= 0 {
		o.LockWait = 5 * time.Second
	}
	return o
}

// Deps are the collaborators shared by every service.  Nil optional
// fields fall back to no-op implementations.
type Deps struct {
	DB        *sql.DB
	Locker    lock.Locker
	Publisher Publisher
	Notifier  realtime.Notifier
	Profiles  ProfileInvalidator
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Publisher == nil {
		d.Publisher = NopPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = realtime.Nop{}
	}
	if d.Profiles == nil {
		d.Profiles = nopInvalidator{}
	}
	d.Logger = defaultLogger(d.Logger)
	return d
}

// Services bundles every service for wiring into handlers.
type Services struct {
	Queue      *QueueService
	Bids       *BidService
	Moderation *ModerationService
	Ratings    *RatingService
	Accounts   *AccountService
}

// New builds all services over one set of repositories.
func New(deps Deps, opts Options) *Services {
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	repos := repoSet{
		users:        repository.NewUserRepo(deps.DB),
		sessions:     repository.NewSessionRepo(deps.DB),
		reservations: repository.NewReservationRepo(deps.DB),
		barracks:     repository.NewBarrackRepo(deps.DB),
		bids:         repository.NewBidRepo(deps.DB),
		reports:      repository.NewReportRepo(deps.DB),
		ratings:      repository.NewRatingRepo(deps.DB),
	}
	guard := sessionGuard{db: deps.DB, locker: deps.Locker, lockWait: opts.LockWait}
	return &Services{
		Queue:      &QueueService{repoSet: repos, deps: deps, opts: opts, guard: guard},
		Bids:       &BidService{repoSet: repos, deps: deps, guard: guard},
		Moderation: &ModerationService{repoSet: repos, deps: deps, opts: opts},
		Ratings:    &RatingService{repoSet: repos, deps: deps},
		Accounts:   &AccountService{repoSet: repos, deps: deps},
	}
}

type repoSet struct {
	users        *repository.UserRepo
	sessions     *repository.SessionRepo
	reservations *repository.ReservationRepo
	barracks     *repository.BarrackRepo
	bids         *repository.BidRepo
	reports      *repository.ReportRepo
	ratings      *repository.RatingRepo
}

// requireActive loads a user and rejects unverified or suspended accounts.
// It must not be called while a transaction holds the only connection.
func (r repoSet) requireActive(ctx context.Context, userID uint64) error {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Active(time.Now().UTC()) {
		return repository.ErrInactiveUser
	}
	return nil
}
