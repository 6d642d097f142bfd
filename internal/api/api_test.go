package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kashuab/openpark/internal/api"
	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/slotstore"
	slotmem "github.com/Kashuab/openpark/internal/slotstore/memory"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newServer(t *testing.T) (http.Handler, *clock) {
	t.Helper()

	c := &clock{now: t0}
	e := &engine.Engine{Store: slotmem.New(), Grace: 5 * time.Second, Logger: zerolog.Nop()}
	a := api.New(e, zerolog.Nop(), api.Options{
		PublicURL: "https://park.example.com",
		Now:       c.Now,
	})
	return a.Handler(), c
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBookAndList(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "John", "slot": " a1 "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	booked := decode[map[string]any](t, rec)
	if booked["slot"] != "A1" {
		t.Errorf("expected normalized slot 'A1', got %v", booked["slot"])
	}
	if booked["remaining_seconds"] != float64(5) {
		t.Errorf("expected 5 seconds remaining, got %v", booked["remaining_seconds"])
	}

	rec = do(t, h, http.MethodGet, "/api/bookings/slots", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	slots := decode[[]map[string]any](t, rec)
	if len(slots) != 1 || slots[0]["user"] != "John" || slots[0]["status"] != "booked" {
		t.Errorf("unexpected slots: %v", slots)
	}
}

func TestBookErrors(t *testing.T) {
	h, _ := newServer(t)
	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "Alice", "slot": "B2"})

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing user", map[string]string{"slot": "C3"}, http.StatusBadRequest},
		{"missing slot", map[string]string{"user": "X"}, http.StatusBadRequest},
		{"already booked", map[string]string{"user": "Bob", "slot": "b2"}, http.StatusConflict},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/bookings/book", tt.body)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if msg := decode[map[string]string](t, rec)["error"]; msg == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestCheckInFlow(t *testing.T) {
	h, c := newServer(t)
	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "John", "slot": "A1"})

	c.now = t0.Add(3 * time.Second)
	rec := do(t, h, http.MethodPost, "/api/bookings/checkin", map[string]string{"slot": "a1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["status"]; got != "occupied" {
		t.Errorf("expected status 'occupied', got %v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/bookings/occupied", nil)
	if occupied := decode[[]map[string]any](t, rec); len(occupied) != 1 {
		t.Errorf("expected 1 occupied slot, got %d", len(occupied))
	}
}

func TestCheckInErrors(t *testing.T) {
	h, c := newServer(t)
	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "Alice", "slot": "B2"})
	c.now = t0.Add(6 * time.Second)

	tests := []struct {
		name   string
		slot   string
		status int
	}{
		{"expired", "B2", http.StatusGone},
		{"unknown slot", "Z9", http.StatusNotFound},
		{"empty slot", "  ", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/bookings/checkin", map[string]string{"slot": tt.slot})
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRelease(t *testing.T) {
	h, _ := newServer(t)
	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "John", "slot": "A1"})

	if rec := do(t, h, http.MethodDelete, "/api/bookings/delete/a1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, "/api/bookings/delete/A1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second release, got %d", rec.Code)
	}
}

func TestQR(t *testing.T) {
	h, _ := newServer(t)

	if rec := do(t, h, http.MethodGet, "/api/bookings/qr/A1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unbooked slot, got %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "John", "slot": "A1"})
	rec := do(t, h, http.MethodGet, "/api/bookings/qr/A1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}
}

func TestCheckInURL(t *testing.T) {
	got := api.CheckInURL("https://park.example.com/", "A 1")
	if got != "https://park.example.com/checkin?slot=A+1" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestQRTargetIsServed(t *testing.T) {
	h, _ := newServer(t)
	do(t, h, http.MethodPost, "/api/bookings/book", map[string]string{"user": "John", "slot": "A1"})

	target := strings.TrimPrefix(api.CheckInURL("https://park.example.com", "A1"), "https://park.example.com")
	rec := do(t, h, http.MethodGet, target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for %s, got %d", target, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html page, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Check in to slot A1") {
		t.Errorf("expected page for slot A1, got %q", rec.Body.String())
	}

	// Opening the page does not check in.
	rec = do(t, h, http.MethodGet, "/api/bookings/occupied", nil)
	if occupied := decode[[]map[string]any](t, rec); len(occupied) != 0 {
		t.Errorf("expected no occupied slots after viewing the page, got %d", len(occupied))
	}
}

func TestCheckInPageEscapesSlot(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodGet, "/checkin?slot=%3Cscript%3E", nil)
	if strings.Contains(rec.Body.String(), "<SCRIPT>") {
		t.Errorf("expected slot to be escaped, got %q", rec.Body.String())
	}
}

func TestLivenessAndHealth(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "running") {
		t.Errorf("unexpected liveness response %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}

type downEngine struct{ engine.Engine }

var errDown = &engine.StorageError{Op: "list", Err: errors.New("connection refused")}

func (downEngine) ListSlots(context.Context) ([]slotstore.Reservation, error) {
	return nil, errDown
}

func TestStorageErrorIsGeneric500(t *testing.T) {
	a := api.New(&downEngine{}, zerolog.Nop(), api.Options{})
	rec := do(t, a.Handler(), http.MethodGet, "/api/bookings/slots", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["error"]; strings.Contains(msg, "connection refused") {
		t.Errorf("expected storage detail to be hidden, got %q", msg)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrValidation, http.StatusBadRequest},
		{engine.ErrSlotUnavailable, http.StatusConflict},
		{engine.ErrSlotNotFound, http.StatusNotFound},
		{engine.ErrCheckInExpired, http.StatusGone},
		{errDown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := api.StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
