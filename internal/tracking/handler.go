package tracking

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

var thankYouPage = template.Must(template.New("thanks").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>Thank you!</h1>
<p>{{if .}}Thanks for being a customer of {{.}}.{{else}}Thanks for your feedback.{{end}}</p>
</body></html>`))

// Handler serves the public tracking endpoints. It never reports internal
// errors to the client.
type Handler struct {
	svc          *Service
	fallbackURL  string
	businessName string
	logger       *slog.Logger
}

// NewHandler creates tracking handlers. fallbackURL is where clicks on
// unknown ids are sent; when empty a thank-you page is shown instead.
func NewHandler(svc *Service, fallbackURL, businessName string, logger *slog.Logger) *Handler {
	return &Handler{
		svc:          svc,
		fallbackURL:  fallbackURL,
		businessName: businessName,
		logger:       logger.With("component", "tracking_http"),
	}
}

// Mount registers the tracking routes on r
func (h *Handler) Mount(r chi.Router) {
	r.Get("/track/open/{id}", h.HandleOpen)
	r.Get("/track/click/{id}", h.HandleClick)
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.RecordOpen(r.Context(), id); err != nil {
		h.logger.Error("failed to record open", "customer_id", id, "ip", realIP(r), "error", err)
	}
	servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	link, found, err := h.svc.RecordClick(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to record click", "customer_id", id, "ip", realIP(r), "error", err)
	}
	if !found {
		h.logger.Debug("click for unknown customer", "customer_id", id)
	}

	target := link
	if target == "" {
		target = h.fallbackURL
	}
	if target == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		thankYouPage.Execute(w, h.businessName)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
