package purge

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrObjectNotFound is what a deleter returns for a blob that is already
// gone. The purger counts it as success.
var ErrObjectNotFound = errors.New("object not found")

// ObjectDeleter is the blob-storage delete primitive.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

type Outcome string

const (
	NotAttempted Outcome = "not_attempted"
	Purged       Outcome = "purged"
	Failed       Outcome = "failed"
)

type Result struct {
	Outcome Outcome
	Key     string
	Err     error
}

func (r Result) Attempted() bool { return r.Outcome != NotAttempted }

type Config struct {
	Deleter ObjectDeleter
	// Bucket is matched against s3:// and gs:// locators.
	Bucket string
	// PublicBaseURL, when set, also makes https locators under it purgeable.
	PublicBaseURL string
	Timeout       time.Duration
	Logger        zerolog.Logger
}

// Purger deletes original uploads on a best-effort basis. It never returns
// an error; the outcome is reported in the Result.
type Purger struct {
	deleter    ObjectDeleter
	bucket     string
	publicBase string
	timeout    time.Duration
	logger     zerolog.Logger
}

const defaultPurgeTimeout = 10 * time.Second

func New(cfg Config) *Purger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPurgeTimeout
	}
	return &Purger{
		deleter:    cfg.Deleter,
		bucket:     strings.TrimSpace(cfg.Bucket),
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		timeout:    timeout,
		logger:     cfg.Logger.With().Str("component", "origin_purger").Logger(),
	}
}

func (p *Purger) Purge(ctx context.Context, locator string) Result {
	key, ok := p.Resolve(locator)
	if !ok || p.deleter == nil {
		return Result{Outcome: NotAttempted}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.deleter.Delete(ctx, key)
	switch {
	case err == nil:
		p.logger.Debug().Str("key", key).Msg("origin deleted")
		return Result{Outcome: Purged, Key: key}
	case errors.Is(err, ErrObjectNotFound):
		p.logger.Debug().Str("key", key).Msg("origin already absent")
		return Result{Outcome: Purged, Key: key}
	default:
		p.logger.Warn().Err(err).Str("key", key).Msg("origin purge failed")
		return Result{Outcome: Failed, Key: key, Err: err}
	}
}

// Resolve maps a locator to an object key in the configured storage, or
// reports false when the locator does not point into it.
func (p *Purger) Resolve(locator string) (string, bool) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", false
	}

	if p.publicBase != "" && strings.HasPrefix(locator, p.publicBase+"/") {
		key := strings.TrimPrefix(locator, p.publicBase+"/")
		if i := strings.IndexAny(key, "?#"); i >= 0 {
			key = key[:i]
		}
		return cleanKey(key)
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "s3", "gs":
		if p.bucket == "" || u.Host != p.bucket {
			return "", false
		}
		return cleanKey(u.Path)
	default:
		return "", false
	}
}

func cleanKey(key string) (string, bool) {
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
