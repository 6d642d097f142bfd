package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/Kashuab/openpark/internal/engine"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// handleCheckInPage serves the page a slot's QR code opens. The page posts
// to the check-in route itself, so scanning the code never mutates state.
func (a *API) handleCheckInPage(w http.ResponseWriter, r *http.Request) {
	slot := engine.NormalizeSlotID(r.URL.Query().Get("slot"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := templates.ExecuteTemplate(w, "checkin.html", map[string]string{"Slot": slot}); err != nil {
		a.logger.Error().Err(err).Str("slot", slot).Msg("failed to render check-in page")
	}
}
