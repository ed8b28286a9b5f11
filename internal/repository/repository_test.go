package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gbus-app/gbus-server/internal/model"
	"github.com/gbus-app/gbus-server/internal/repository"
	"github.com/gbus-app/gbus-server/internal/testutil"
)

func TestBarrackAddManyKeepsOrder(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.NewUser(t, db, testutil.UserOpts{})
	repo := repository.NewBarrackRepo(db)
	ctx := context.Background()

	if _, err := repo.AddMany(ctx, u.ID, []string{"alpha", "beta"}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	added, err := repo.AddMany(ctx, u.ID, []string{"gamma"})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added[0].SortOrder != 2 {
		t.Fatalf("sort order = %d, want 2", added[0].SortOrder)
	}
	if _, err := repo.AddMany(ctx, u.ID, []string{"delta", "alpha"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate add err = %v, want ErrConflict", err)
	}
	list, err := repo.ListByUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, c := range list {
		got = append(got, c.CharName)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(got) != len(want) {
		t.Fatalf("roster = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roster = %v, want %v", got, want)
		}
	}
}

func TestBarrackDeleteOwnership(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.NewUser(t, db, testutil.UserOpts{})
	other := testutil.NewUser(t, db, testutil.UserOpts{})
	repo := repository.NewBarrackRepo(db)
	ctx := context.Background()
	added, err := repo.AddMany(ctx, owner.ID, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, added[0].ID, other.ID); !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if err := repo.Delete(ctx, added[0].ID, owner.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, added[0].ID, owner.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReservationLedgerTransitions(t *testing.T) {
	db := testutil.NewDB(t)
	driver := testutil.NewUser(t, db, testutil.UserOpts{})
	pax := testutil.NewUser(t, db, testutil.UserOpts{})
	sess := testutil.NewSession(t, db, driver.ID, model.PriceFixed)
	repo := repository.NewReservationRepo(db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	first := model.Reservation{SessionID: sess.ID, UserID: pax.ID, CharName: "alpha", QueueNo: 1}
	if err := repo.CreateTx(ctx, tx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := model.Reservation{SessionID: sess.ID, UserID: pax.ID, CharName: "beta", QueueNo: 1}
	if err := repo.CreateTx(ctx, tx, &dup); !errors.Is(err, repository.ErrTransactionConflict) {
		t.Fatalf("duplicate queue_no err = %v, want ErrTransactionConflict", err)
	}
	top, err := repo.MaxQueueNoTx(ctx, tx, sess.ID)
	if err != nil || top != 1 {
		t.Fatalf("max queue_no = %d, %v", top, err)
	}

	if _, err := repo.TransitionTx(ctx, tx, first.ID, model.ReservationWaiting, model.ReservationDone); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("waiting->done err = %v, want ErrInvalidTransition", err)
	}
	ok, err := repo.TransitionTx(ctx, tx, first.ID, model.ReservationWaiting, model.ReservationCalled)
	if err != nil || !ok {
		t.Fatalf("waiting->called = %v, %v", ok, err)
	}
	ok, err = repo.TransitionTx(ctx, tx, first.ID, model.ReservationWaiting, model.ReservationCalled)
	if err != nil || ok {
		t.Fatalf("stale transition applied = %v, %v", ok, err)
	}
	called, found, err := repo.CalledTx(ctx, tx, sess.ID)
	if err != nil || !found || called.ID != first.ID {
		t.Fatalf("called = %+v found=%v err=%v", called, found, err)
	}
	taken, err := repo.ReservedNamesTx(ctx, tx, sess.ID, []string{"alpha", "beta"})
	if err != nil || len(taken) != 1 || taken[0] != "alpha" {
		t.Fatalf("taken = %v, %v", taken, err)
	}
	n, err := repository.NewSessionRepo(db).RecountTx(ctx, tx, sess.ID)
	if err != nil || n != 1 {
		t.Fatalf("recount = %d, %v", n, err)
	}
}

func TestBidRepoExclusivityHelpers(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.NewUser(t, db, testutil.UserOpts{})
	d1 := testutil.NewUser(t, db, testutil.UserOpts{})
	d2 := testutil.NewUser(t, db, testutil.UserOpts{})
	sess := testutil.NewSession(t, db, owner.ID, model.PriceAuction)
	repo := repository.NewBidRepo(db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	b1 := model.Bid{SessionID: sess.ID, DriverID: d1.ID, Price: 500}
	b2 := model.Bid{SessionID: sess.ID, DriverID: d2.ID, Price: 400}
	for _, b := range []*model.Bid{&b1, &b2} {
		if err := repo.CreateTx(ctx, tx, b); err != nil {
			t.Fatalf("create bid: %v", err)
		}
	}
	again := model.Bid{SessionID: sess.ID, DriverID: d1.ID, Price: 300}
	if err := repo.CreateTx(ctx, tx, &again); !errors.Is(err, repository.ErrBidExists) {
		t.Fatalf("second bid err = %v, want ErrBidExists", err)
	}
	if ok, err := repo.SetStatusTx(ctx, tx, b2.ID, model.BidAccepted); err != nil || !ok {
		t.Fatalf("accept = %v, %v", ok, err)
	}
	if n, err := repo.RejectOthersTx(ctx, tx, sess.ID, b2.ID); err != nil || n != 1 {
		t.Fatalf("reject others = %d, %v", n, err)
	}
	if has, err := repo.HasAcceptedTx(ctx, tx, sess.ID); err != nil || !has {
		t.Fatalf("has accepted = %v, %v", has, err)
	}
}

func TestReportResolveOnce(t *testing.T) {
	db := testutil.NewDB(t)
	reporter := testutil.NewUser(t, db, testutil.UserOpts{})
	target := testutil.NewUser(t, db, testutil.UserOpts{})
	admin := testutil.NewUser(t, db, testutil.UserOpts{Role: model.RoleAdmin})
	repo := repository.NewReportRepo(db)
	ctx := context.Background()

	rp := model.Report{ReporterID: reporter.ID, ReportedID: target.ID, Category: "noshow", Reason: "idle"}
	if err := repo.Create(ctx, &rp); err != nil {
		t.Fatal(err)
	}
	for i, want := range []error{nil, repository.ErrAlreadyResolved} {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		err = repo.ResolveTx(ctx, tx, rp.ID, model.ReportDismissed, nil, admin.ID, rp.CreatedAt)
		if !errors.Is(err, want) {
			t.Fatalf("resolve #%d err = %v, want %v", i+1, err, want)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	list, err := repo.List(ctx, model.ReportDismissed)
	if err != nil || len(list) != 1 || list[0].ReviewedBy == nil || *list[0].ReviewedBy != admin.ID {
		t.Fatalf("list = %+v, %v", list, err)
	}
}

func TestRatingSummary(t *testing.T) {
	db := testutil.NewDB(t)
	driver := testutil.NewUser(t, db, testutil.UserOpts{})
	r1 := testutil.NewUser(t, db, testutil.UserOpts{})
	r2 := testutil.NewUser(t, db, testutil.UserOpts{})
	sess := testutil.NewSession(t, db, driver.ID, model.PriceFixed)
	repo := repository.NewRatingRepo(db)
	ctx := context.Background()

	empty, err := repo.Summary(ctx, driver.ID)
	if err != nil || empty.Count != 0 || empty.SpeedAvg != 0 {
		t.Fatalf("empty summary = %+v, %v", empty, err)
	}
	for _, rt := range []model.DriverRating{
		{SessionID: sess.ID, DriverID: driver.ID, RaterID: r1.ID, SpeedScore: 5, SafetyScore: 4},
		{SessionID: sess.ID, DriverID: driver.ID, RaterID: r2.ID, SpeedScore: 3, SafetyScore: 4},
	} {
		rt := rt
		if err := repo.Create(ctx, &rt); err != nil {
			t.Fatal(err)
		}
	}
	dup := model.DriverRating{SessionID: sess.ID, DriverID: driver.ID, RaterID: r1.ID, SpeedScore: 1, SafetyScore: 1}
	if err := repo.Create(ctx, &dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate rating err = %v, want ErrConflict", err)
	}
	sum, err := repo.Summary(ctx, driver.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 2 || sum.SpeedAvg != 4 || sum.SafetyAvg != 4 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestApplyNoShowFloorsHonor(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.NewUser(t, db, testutil.UserOpts{Honor: 5})
	repo := repository.NewUserRepo(db)
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.ApplyNoShowTx(ctx, tx, u.ID, 10); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HonorScore != 0 || got.NoShowCount != 1 {
		t.Fatalf("honor=%d noshow=%d, want 0 and 1", got.HonorScore, got.NoShowCount)
	}
}
