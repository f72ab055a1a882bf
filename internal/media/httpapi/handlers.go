package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/correlation"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/service"
	"github.com/romariotrain/media-pipeline/internal/media/transcoder"
	"github.com/romariotrain/media-pipeline/internal/media/uploads"
	"github.com/romariotrain/media-pipeline/internal/media/webhook"
)

const (
	maxWebhookBody   = 1 << 20
	defaultHeartbeat = 15 * time.Second
)

type UploadIssuer interface {
	Issue(ctx context.Context, req uploads.Request) (*uploads.Session, error)
}

type WebhookReceiver interface {
	Handle(ctx context.Context, rawBody []byte, signature string) (webhook.Result, error)
}

type Config struct {
	Service  *service.Service
	Issuer   UploadIssuer
	Receiver WebhookReceiver
	Logger   zerolog.Logger
	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

type Handler struct {
	svc       *service.Service
	issuer    UploadIssuer
	receiver  WebhookReceiver
	logger    zerolog.Logger
	heartbeat time.Duration
}

func New(cfg Config) *Handler {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		svc:       cfg.Service,
		issuer:    cfg.Issuer,
		receiver:  cfg.Receiver,
		logger:    cfg.Logger.With().Str("component", "httpapi").Logger(),
		heartbeat: heartbeat,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreateMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.CreateItem(r.Context(), service.CreateInput{
		OwnerID:       req.OwnerID,
		MediaKind:     req.MediaKind,
		TransformMode: req.TransformMode,
		Caption:       req.Caption,
		OriginLocator: req.OriginLocator,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMediaResponse(m))
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaResponse(m))
}

func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.AdvanceStage(r.Context(), r.PathValue("id"), req.Status, req.Stage)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaResponse(m))
}

func (h *Handler) UpdateCaption(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req UpdateCaptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.UpdateCaption(r.Context(), r.PathValue("id"), req.Caption)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaResponse(m))
}

func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}

	payload, err := parsePassthrough(req.Passthrough)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.issuer.Issue(r.Context(), uploads.Request{
		CORSOrigin:     req.CORSOrigin,
		RequestOrigin:  r.Header.Get("Origin"),
		Correlation:    payload,
		PlaybackPolicy: req.PlaybackPolicy,
	})
	if err != nil {
		if uploads.IsIssuanceError(err) {
			writeErrorJSON(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("issue upload session")
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		UploadURL:  session.UploadTargetURL,
		UploadID:   session.SessionID,
		CORSOrigin: session.CORSOrigin,
	})
}

// UploadPreflight answers OPTIONS requests that reach the router without
// an Origin header; browser preflights are handled by the CORS middleware.
func (h *Handler) UploadPreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}

// TranscoderWebhook passes the exact request bytes to the receiver; the
// signature is computed over them.
func (h *Handler) TranscoderWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.receiver.Handle(r.Context(), raw, r.Header.Get(transcoder.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrAuthentication):
			writeErrorJSON(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, webhook.ErrMalformedEvent):
			writeErrorJSON(w, http.StatusBadRequest, "malformed event")
		default:
			writeErrorJSON(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Status: string(res.Outcome)})
}

// StreamEvents writes the record's snapshots as server-sent events until
// the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorJSON(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := r.PathValue("id")
	snapshots, err := h.svc.Watch(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(toSnapshotResponse(snap))
			if err != nil {
				h.logger.Error().Err(err).Str("media_id", id).Msg("encode snapshot")
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalidArgument):
		writeErrorJSON(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, models.ErrInvalidTransition):
		writeErrorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeErrorJSON(w, http.StatusConflict, "conflict")
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
	}
}

// parsePassthrough accepts a JSON string, run through the correlation
// decoder, or an {itemId, ownerId} object.
func parsePassthrough(raw json.RawMessage) (*correlation.Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("invalid passthrough")
		}
		p := correlation.Decode(s)
		if !p.Valid() {
			return nil, nil
		}
		return &p, nil
	case '{':
		var obj struct {
			ItemID  string `json:"itemId"`
			OwnerID string `json:"ownerId"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("invalid passthrough")
		}
		if obj.ItemID == "" {
			return nil, fmt.Errorf("passthrough itemId is required")
		}
		return &correlation.Payload{Kind: correlation.KindStructured, ItemID: obj.ItemID, OwnerID: obj.OwnerID}, nil
	default:
		return nil, fmt.Errorf("passthrough must be a string or an object")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
