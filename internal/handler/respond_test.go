package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/repository"
	"github.com/gbus-app/gbus-server/internal/service"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"validation", &service.ValidationError{FieldErrors: map[string]string{"title": "required"}}, http.StatusBadRequest, false},
		{"unauthenticated", errUnauthenticated, http.StatusUnauthorized, false},
		{"not found", repository.ErrNotFound, http.StatusNotFound, false},
		{"forbidden", repository.ErrForbidden, http.StatusForbidden, false},
		{"inactive", repository.ErrInactiveUser, http.StatusForbidden, false},
		{"not in barrack", repository.ErrCharacterNotInBarrack, http.StatusBadRequest, false},
		{"wrapped reserved", fmt.Errorf("%w: alpha", repository.ErrCharacterAlreadyReserved), http.StatusConflict, false},
		{"tx conflict", repository.ErrTransactionConflict, http.StatusConflict, true},
		{"lock busy", lock.ErrNotAcquired, http.StatusConflict, true},
		{"unexpected", fmt.Errorf("disk on fire"), http.StatusInternalServerError, false},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if err := writeError(c, tc.err); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if got := body["retryable"] == true; got != tc.retryable {
				t.Fatalf("retryable = %v, want %v (body %v)", got, tc.retryable, body)
			}
			if tc.status == http.StatusInternalServerError && body["error"] != "internal error" {
				t.Fatalf("internal error leaked: %v", body["error"])
			}
		})
	}
}

func TestPathID(t *testing.T) {
	e := echo.New()
	for _, raw := range []string{"0", "-1", "abc", ""} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(raw)
		if _, err := pathID(c, "id"); statusFor(err) != http.StatusBadRequest {
			t.Errorf("pathID(%q) err = %v, want validation error", raw, err)
		}
	}
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("42")
	if id, err := pathID(c, "id"); err != nil || id != 42 {
		t.Fatalf("pathID = %d, %v", id, err)
	}
}
