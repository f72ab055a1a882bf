package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// CORSPolicy lists the browser origins allowed to call the API. "*"
// allows any origin. An empty policy permits same-origin requests only.
// Open paths accept every origin; the handler behind them decides what the
// origin means.
type CORSPolicy struct {
	allowed map[string]struct{}
	any     bool
	open    map[string]struct{}
}

func NewCORSPolicy(origins []string) (CORSPolicy, error) {
	policy := CORSPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			policy.any = true
			continue
		}
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return CORSPolicy{}, fmt.Errorf("parse origin %q: %w", origin, err)
		}
		if normalized != "" {
			policy.allowed[normalized] = struct{}{}
		}
	}
	return policy, nil
}

// WithOpenPaths returns a copy of p that never rejects requests to paths.
func (p CORSPolicy) WithOpenPaths(paths ...string) CORSPolicy {
	open := make(map[string]struct{}, len(p.open)+len(paths))
	for path := range p.open {
		open[path] = struct{}{}
	}
	for _, path := range paths {
		open[path] = struct{}{}
	}
	p.open = open
	return p
}

func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", nil
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

// CORSMiddleware answers preflights and decorates cross-origin responses.
func CORSMiddleware(policy CORSPolicy, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !policy.allows(origin, originForRequest(r)) && !policy.isOpen(r.URL.Path) {
			logger.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("blocked CORS origin")
			writeErrorJSON(w, http.StatusForbidden, "origin not allowed")
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			if r.Header.Get("Access-Control-Request-Method") == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				w.Header().Set("Access-Control-Allow-Headers", requested)
			} else {
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p CORSPolicy) allows(origin, requestOrigin string) bool {
	normalized, err := normalizeOrigin(origin)
	if err != nil || normalized == "" {
		return false
	}
	if p.any {
		return true
	}
	if _, ok := p.allowed[normalized]; ok {
		return true
	}
	return requestOrigin != "" && normalized == requestOrigin
}

func (p CORSPolicy) isOpen(path string) bool {
	_, ok := p.open[path]
	return ok
}

func originForRequest(r *http.Request) string {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
