package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/slotstore"
	"github.com/Kashuab/openpark/internal/telemetry"
)

const maxBodyBytes = 1 << 16

// Reservations is the part of the engine the HTTP surface drives.
type Reservations interface {
	Book(ctx context.Context, slotID, occupant string, now time.Time) (*slotstore.Reservation, error)
	CheckIn(ctx context.Context, slotID string, now time.Time) (*slotstore.Reservation, error)
	Release(ctx context.Context, slotID string) error
	Get(ctx context.Context, slotID string) (*slotstore.Reservation, error)
	ListSlots(ctx context.Context) ([]slotstore.Reservation, error)
	ListOccupied(ctx context.Context) ([]slotstore.Reservation, error)
	GraceWindow() time.Duration
}

type Options struct {
	// PublicURL is the externally reachable base URL encoded into check-in
	// QR codes.
	PublicURL      string
	AllowedOrigins []string
	Now            func() time.Time
}

type API struct {
	engine Reservations
	logger zerolog.Logger
	opts   Options
}

func New(e Reservations, logger zerolog.Logger, opts Options) *API {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &API{
		engine: e,
		logger: logger.With().Str("component", "api").Logger(),
		opts:   opts,
	}
}

// Handler returns the full HTTP surface, CORS included.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.MetricsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OpenPark API is running"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	r.Get("/checkin", a.handleCheckInPage)

	r.Route("/api/bookings", func(r chi.Router) {
		r.Get("/slots", a.handleSlots)
		r.Get("/occupied", a.handleOccupied)
		r.Post("/book", a.handleBook)
		r.Post("/checkin", a.handleCheckIn)
		r.Delete("/delete/{slot}", a.handleRelease)
		r.Get("/qr/{slot}", a.handleQR)
	})

	return cors.New(cors.Options{
		AllowedOrigins: a.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

type bookRequest struct {
	User string `json:"user"`
	Slot string `json:"slot"`
}

type checkInRequest struct {
	Slot string `json:"slot"`
}

// slotView is a reservation plus the check-in time left, for clients that
// render a countdown.
type slotView struct {
	slotstore.Reservation
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (a *API) view(r slotstore.Reservation, now time.Time) slotView {
	return slotView{
		Reservation:      r,
		RemainingSeconds: r.Remaining(now, a.engine.GraceWindow()).Seconds(),
	}
}

func (a *API) views(rs []slotstore.Reservation) []slotView {
	now := a.opts.Now()
	out := make([]slotView, 0, len(rs))
	for _, r := range rs {
		out = append(out, a.view(r, now))
	}
	return out
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	rs, err := a.engine.ListSlots(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.views(rs))
}

func (a *API) handleOccupied(w http.ResponseWriter, r *http.Request) {
	rs, err := a.engine.ListOccupied(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.views(rs))
}

func (a *API) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := a.opts.Now()
	res, err := a.engine.Book(r.Context(), engine.NormalizeSlotID(req.Slot), strings.TrimSpace(req.User), now)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.view(*res, now))
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := a.opts.Now()
	res, err := a.engine.CheckIn(r.Context(), engine.NormalizeSlotID(req.Slot), now)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(*res, now))
}

func (a *API) handleRelease(w http.ResponseWriter, r *http.Request) {
	slot := engine.NormalizeSlotID(chi.URLParam(r, "slot"))
	if err := a.engine.Release(r.Context(), slot); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("slot %s released", slot)})
}

// handleQR serves a PNG pointing at the check-in URL for a booked slot.
func (a *API) handleQR(w http.ResponseWriter, r *http.Request) {
	slot := engine.NormalizeSlotID(chi.URLParam(r, "slot"))
	if _, err := a.engine.Get(r.Context(), slot); err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	png, err := qrcode.Encode(CheckInURL(a.opts.PublicURL, slot), qrcode.Medium, 256)
	if err != nil {
		a.logger.Error().Err(err).Str("slot", slot).Msg("failed to encode qr code")
		writeError(w, http.StatusInternalServerError, "failed to encode qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// CheckInURL is the payload encoded into a slot's QR code: the check-in page
// served at GET /checkin, which posts the check-in for slot.
func CheckInURL(publicURL, slot string) string {
	base := strings.TrimRight(publicURL, "/")
	return base + "/checkin?slot=" + url.QueryEscape(slot)
}

func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("reservation request failed")
		writeError(w, status, "internal storage error")
		return
	}
	writeError(w, status, strings.TrimPrefix(err.Error(), "openpark: "))
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrCheckInExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
