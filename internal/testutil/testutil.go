// Package testutil builds throwaway SQLite databases and fixtures for
// repository, service and handler tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gbus-app/gbus-server/internal/database"
	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/repository"
)

var seq atomic.Uint64

// NewDB returns a migrated SQLite database in a temporary directory that
// is closed when the test ends.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gbus.db")
	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// UserOpts tweaks a fixture user.
type UserOpts struct {
	Role       string
	Unverified bool
	Honor      int
	Suspended  time.Duration
}

// NewUser inserts a verified user and returns it.
func NewUser(t testing.TB, db *sql.DB, opts UserOpts) model.User {
	t.Helper()
	ctx := context.Background()
	users := repository.NewUserRepo(db)
	if opts.Role == "" {
		opts.Role = model.RoleUser
	}
	if opts.Honor == 0 {
		opts.Honor = 100
	}
	email := fmt.Sprintf("user%d@example.com", seq.Add(1))
	id, err := users.Create(ctx, email, "password123", opts.Role, 4, opts.Honor)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !opts.Unverified {
		if err := users.SetVerified(ctx, id, true); err != nil {
			t.Fatalf("verify user: %v", err)
		}
	}
	if opts.Suspended > 0 {
		if _, err := db.ExecContext(ctx, `UPDATE users SET suspended_until = ? WHERE id = ?`,
			time.Now().UTC().Add(opts.Suspended), id); err != nil {
			t.Fatalf("suspend user: %v", err)
		}
	}
	u, err := users.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	return u
}

// NewBarrack adds names to the user's barrack.
func NewBarrack(t testing.TB, db *sql.DB, userID uint64, names ...string) {
	t.Helper()
	if _, err := repository.NewBarrackRepo(db).AddMany(context.Background(), userID, names); err != nil {
		t.Fatalf("add barrack: %v", err)
	}
}

// NewSession inserts a waiting session owned by driverID.
func NewSession(t testing.TB, db *sql.DB, driverID uint64, priceType model.PriceType) model.Session {
	t.Helper()
	s := model.Session{
		DriverID:        driverID,
		Title:           "test run",
		DungeonName:     "MeKii",
		PostType:        model.PostBus,
		PriceType:       priceType,
		MinCount:        model.DefaultBusMinCount,
		AvgRoundMinutes: 10,
	}
	if priceType == model.PriceAuction {
		s.PostType = model.PostBarrackBus
	}
	if err := repository.NewSessionRepo(db).Create(context.Background(), &s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

// Names returns n distinct character names with the given prefix.
func Names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%02d", prefix, i+1)
	}
	return out
}
