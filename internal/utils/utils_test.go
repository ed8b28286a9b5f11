package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "MODERATOR", 15)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(tok.Exp) < 14*time.Minute {
		t.Fatalf("exp = %v", tok.Exp)
	}
	id, role, err := ParseAccessToken("secret", tok.Token)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 || role != "MODERATOR" {
		t.Fatalf("got id=%d role=%q", id, role)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, _ := NewAccessToken("secret", 1, "USER", 15)
	expired, _ := NewAccessToken("secret", 1, "USER", -1)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "USER", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 1, "role": "USER",
	}).SignedString([]byte("secret"))

	cases := map[string]struct{ secret, raw string }{
		"wrong secret": {"other", good.Token},
		"expired":      {"secret", expired.Token},
		"missing sub":  {"secret", noSub},
		"missing exp":  {"secret", noExp},
		"garbage":      {"secret", "not.a.jwt"},
	}
	for name, tc := range cases {
		if _, _, err := ParseAccessToken(tc.secret, tc.raw); err != ErrInvalidToken {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestRefreshTokenHash(t *testing.T) {
	rt, err := NewRefreshToken(14)
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Raw) != 96 {
		t.Fatalf("raw length = %d", len(rt.Raw))
	}
	if HashRefreshRaw(rt.Raw) != HashRefreshRaw(rt.Raw) || HashRefreshRaw(rt.Raw) == rt.Raw {
		t.Fatal("hash must be deterministic and differ from raw")
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(h, "hunter22") || VerifyPassword(h, "hunter23") {
		t.Fatal("password verification mismatch")
	}
}
