package service_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/model"
	q "github.com/gbus-app/gbus-server/internal/queue"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/service"
	"github.com/gbus-app/gbus-server/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []q.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev q.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type sent struct {
	sessionID uint64
	userID    uint64
	msg       realtime.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Broadcast(sessionID uint64, msg realtime.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{sessionID: sessionID, msg: msg})
}

func (n *recordingNotifier) Notify(sessionID, userID uint64, msg realtime.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{sessionID: sessionID, userID: userID, msg: msg})
}

func (n *recordingNotifier) ofType(typ string) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.sent {
		if s.msg.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uint64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingInvalidator) has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.ids {
		if v == id {
			return true
		}
	}
	return false
}

type fixture struct {
	db       *sql.DB
	svc      *service.Services
	events   *recordingPublisher
	notifier *recordingNotifier
	profiles *recordingInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:       db,
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
		profiles: &recordingInvalidator{},
	}
	f.svc = service.New(service.Deps{
		DB:        db,
		Locker:    lock.NewLocal(),
		Publisher: f.events,
		Notifier:  f.notifier,
		Profiles:  f.profiles,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, service.Options{NoShowPenalty: 10, WarnPenalty: 10, AlertBefore: 3})
	return f
}

func (f *fixture) user(t *testing.T, opts testutil.UserOpts) model.User {
	t.Helper()
	return testutil.NewUser(t, f.db, opts)
}

// passenger creates an active user with the given barrack.
func (f *fixture) passenger(t *testing.T, names ...string) model.User {
	t.Helper()
	u := f.user(t, testutil.UserOpts{})
	if len(names) > 0 {
		testutil.NewBarrack(t, f.db, u.ID, names...)
	}
	return u
}

func (f *fixture) reservation(t *testing.T, id uint64) model.Reservation {
	t.Helper()
	var r model.Reservation
	err := f.db.QueryRow(`SELECT id, session_id, user_id, char_name, queue_no, status FROM reservations WHERE id = ?`, id).
		Scan(&r.ID, &r.SessionID, &r.UserID, &r.CharName, &r.QueueNo, &r.Status)
	if err != nil {
		t.Fatalf("load reservation %d: %v", id, err)
	}
	return r
}

// assertQueueInvariants checks the ledger properties that must hold after
// every operation: current_count matches the live reservations, queue
// numbers are 1..n without gaps and at most one reservation is called.
func (f *fixture) assertQueueInvariants(t *testing.T, sessionID uint64) {
	t.Helper()
	var stored, live, called, n, maxNo int
	if err := f.db.QueryRow(`SELECT current_count FROM bus_sessions WHERE id = ?`, sessionID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status IN ('waiting','called')`, sessionID).Scan(&live); err != nil {
		t.Fatal(err)
	}
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status = 'called'`, sessionID).Scan(&called); err != nil {
		t.Fatal(err)
	}
	if err := f.db.QueryRow(`SELECT COUNT(*), COALESCE(MAX(queue_no), 0) FROM reservations WHERE session_id = ?`, sessionID).Scan(&n, &maxNo); err != nil {
		t.Fatal(err)
	}
	if stored != live {
		t.Errorf("current_count = %d, live reservations = %d", stored, live)
	}
	if called > 1 {
		t.Errorf("%d reservations called at once", called)
	}
	if n != maxNo {
		t.Errorf("%d reservations but max queue_no %d: numbering has gaps or duplicates", n, maxNo)
	}
}
