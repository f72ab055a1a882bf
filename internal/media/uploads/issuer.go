package uploads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/correlation"
	"github.com/romariotrain/media-pipeline/internal/media/transcoder"
)

var DefaultPlaybackPolicy = []string{"public"}

// Request is what a caller may supply when asking for an upload target.
// Every field is optional.
type Request struct {
	CORSOrigin     string
	RequestOrigin  string
	Correlation    *correlation.Payload
	PlaybackPolicy []string
}

type Session struct {
	SessionID       string
	UploadTargetURL string
	CORSOrigin      string
	PlaybackPolicy  []string
	Correlation     correlation.Payload
}

// SessionIssuanceError wraps a failure reported by the transcoding
// service; Error returns the upstream message unchanged.
type SessionIssuanceError struct {
	Err error
}

func (e *SessionIssuanceError) Error() string { return e.Err.Error() }
func (e *SessionIssuanceError) Unwrap() error { return e.Err }

type Config struct {
	Uploads        transcoder.UploadCreator
	DefaultOrigin  string
	AllowedOrigins []string
	TestMode       bool
	Logger         zerolog.Logger
}

// Issuer hands out one-time upload targets. It never touches the record
// store.
type Issuer struct {
	uploads       transcoder.UploadCreator
	defaultOrigin string
	allowed       map[string]struct{}
	testMode      bool
	logger        zerolog.Logger
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Uploads == nil {
		return nil, fmt.Errorf("upload creator is required")
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return nil, fmt.Errorf("parse allowed origin %q: %w", origin, err)
		}
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &Issuer{
		uploads:       cfg.Uploads,
		defaultOrigin: strings.TrimSpace(cfg.DefaultOrigin),
		allowed:       allowed,
		testMode:      cfg.TestMode,
		logger:        cfg.Logger.With().Str("component", "upload_issuer").Logger(),
	}, nil
}

func (i *Issuer) Issue(ctx context.Context, req Request) (*Session, error) {
	origin := i.selectOrigin(req)

	policy := req.PlaybackPolicy
	if len(policy) == 0 {
		policy = DefaultPlaybackPolicy
	}

	payload := correlation.None
	var passthrough string
	if req.Correlation != nil && req.Correlation.Valid() {
		passthrough = correlation.Encode(req.Correlation.ItemID, req.Correlation.OwnerID)
		payload = correlation.Decode(passthrough)
	}

	up, err := i.uploads.CreateDirectUpload(ctx, transcoder.DirectUploadRequest{
		CORSOrigin:     origin,
		PlaybackPolicy: append([]string(nil), policy...),
		Passthrough:    passthrough,
		Test:           i.testMode,
	})
	if err != nil {
		i.logger.Error().Err(err).Str("cors_origin", origin).Msg("direct upload request failed")
		return nil, &SessionIssuanceError{Err: err}
	}

	i.logger.Info().
		Str("upload_id", up.ID).
		Str("cors_origin", origin).
		Str("media_id", payload.ItemID).
		Bool("test", i.testMode).
		Msg("upload session issued")

	return &Session{
		SessionID:       up.ID,
		UploadTargetURL: up.URL,
		CORSOrigin:      origin,
		PlaybackPolicy:  policy,
		Correlation:     payload,
	}, nil
}

// selectOrigin prefers the explicit value, then the request's Origin
// header, then the default. With an allow-list, anything not listed falls
// back to the default.
func (i *Issuer) selectOrigin(req Request) string {
	candidate := strings.TrimSpace(req.CORSOrigin)
	if candidate == "" {
		candidate = strings.TrimSpace(req.RequestOrigin)
	}
	if candidate == "" {
		return i.defaultOrigin
	}
	if len(i.allowed) == 0 {
		return candidate
	}
	normalized, err := normalizeOrigin(candidate)
	if err != nil {
		return i.defaultOrigin
	}
	if _, ok := i.allowed[normalized]; !ok {
		return i.defaultOrigin
	}
	return candidate
}

// IsIssuanceError reports whether err came from the transcoding service.
func IsIssuanceError(err error) bool {
	var target *SessionIssuanceError
	return errors.As(err, &target)
}

func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "*" {
		return origin, nil
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return fmt.Sprintf("%s://%s", strings.ToLower(parsed.Scheme), strings.ToLower(parsed.Host)), nil
}
