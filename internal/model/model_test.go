package model

import (
	"testing"
	"time"
)

func TestReservationStatusTransitions(t *testing.T) {
	t.Parallel()

	all := []ReservationStatus{ReservationWaiting, ReservationCalled, ReservationDone, ReservationNoShow}
	allowed := map[[2]ReservationStatus]bool{
		{ReservationWaiting, ReservationCalled}: true,
		{ReservationCalled, ReservationDone}:    true,
		{ReservationCalled, ReservationNoShow}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]ReservationStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestReservationStatusActive(t *testing.T) {
	t.Parallel()

	cases := map[ReservationStatus]bool{
		ReservationWaiting: true,
		ReservationCalled:  true,
		ReservationDone:    false,
		ReservationNoShow:  false,
	}
	for status, want := range cases {
		if got := status.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", status, got, want)
		}
		if got := status.Terminal(); got == want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, !want)
		}
	}
}

func TestSessionStatusForwardOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionWaiting, SessionRunning, true},
		{SessionWaiting, SessionCancelled, true},
		{SessionRunning, SessionCompleted, true},
		{SessionRunning, SessionWaiting, false},
		{SessionCompleted, SessionRunning, false},
		{SessionCancelled, SessionWaiting, false},
		{SessionWaiting, SessionWaiting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFloorHonor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score, penalty, want int32
	}{
		{100, 10, 90},
		{5, 10, 0},
		{10, 10, 0},
		{0, 10, 0},
		{7, -3, 7},
	}
	for _, tt := range tests {
		if got := FloorHonor(tt.score, tt.penalty); got != tt.want {
			t.Errorf("FloorHonor(%d, %d) = %d, want %d", tt.score, tt.penalty, got, tt.want)
		}
	}
}

func TestUserActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	if (User{Verified: false}).Active(now) {
		t.Error("unverified user must not be active")
	}
	if !(User{Verified: true}).Active(now) {
		t.Error("verified user without suspension must be active")
	}
	if (User{Verified: true, SuspendedUntil: &future}).Active(now) {
		t.Error("suspended user must not be active")
	}
	if !(User{Verified: true, SuspendedUntil: &past}).Active(now) {
		t.Error("expired suspension must not block the user")
	}
}

func TestAnonymousNameDeterministic(t *testing.T) {
	t.Parallel()

	a := AnonymousName(42)
	if a == "" {
		t.Fatal("expected a non-empty alias")
	}
	if b := AnonymousName(42); a != b {
		t.Fatalf("alias changed between calls: %q vs %q", a, b)
	}
	seen := map[string]bool{}
	for id := uint64(1); id <= 50; id++ {
		seen[AnonymousName(id)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected aliases to vary across sessions, got %v", seen)
	}
}

func TestDefaultMinCount(t *testing.T) {
	t.Parallel()

	if got := DefaultMinCount(PostParty, "DarkWeb"); got != 2 {
		t.Errorf("party DarkWeb = %d, want 2", got)
	}
	if got := DefaultMinCount(PostBarrackBus, "MeKii"); got != 30 {
		t.Errorf("barrack MeKii = %d, want 30", got)
	}
	if got := DefaultMinCount(PostBarrackBus, "Lore"); got != DefaultBusMinCount {
		t.Errorf("barrack Lore = %d, want %d", got, DefaultBusMinCount)
	}
	if got := DefaultMinCount(PostBus, "unknown"); got != DefaultBusMinCount {
		t.Errorf("bus unknown = %d, want %d", got, DefaultBusMinCount)
	}
}

func TestEstimateAhead(t *testing.T) {
	t.Parallel()

	if ahead, eta := EstimateAhead(7, 4, 5); ahead != 3 || eta != 15 {
		t.Errorf("EstimateAhead(7,4,5) = %d,%d", ahead, eta)
	}
	if ahead, eta := EstimateAhead(3, 4, 5); ahead != 0 || eta != 0 {
		t.Errorf("EstimateAhead(3,4,5) = %d,%d", ahead, eta)
	}
	if _, eta := EstimateAhead(2, 0, 0); eta != 20 {
		t.Errorf("default round minutes not applied, eta = %d", eta)
	}
}
