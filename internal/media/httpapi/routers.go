package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"
)

func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /uploads", h.CreateUpload)
	mux.HandleFunc("OPTIONS /uploads", h.UploadPreflight)

	mux.HandleFunc("POST /webhooks/transcoder", h.TranscoderWebhook)

	mux.HandleFunc("POST /media", h.CreateMedia)
	mux.HandleFunc("GET /media/{id}", h.GetMedia)
	mux.HandleFunc("DELETE /media/{id}", h.DeleteMedia)
	mux.HandleFunc("PATCH /media/{id}/status", h.ChangeStatus)
	mux.HandleFunc("PATCH /media/{id}/caption", h.UpdateCaption)
	mux.HandleFunc("GET /media/{id}/events", h.StreamEvents)

	return mux
}

// NewServerHandler is the router behind CORS. Upload requests pass from
// any origin: the issuer maps an unlisted origin to the default one.
func NewServerHandler(h *Handler, policy CORSPolicy, logger zerolog.Logger) http.Handler {
	return CORSMiddleware(policy.WithOpenPaths("/uploads"), logger, NewRouter(h))
}
