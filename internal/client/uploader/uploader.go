// Package uploader sends a local file to a one-time upload target in
// resumable chunks.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultChunkSize   = 8 << 20
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond

	// statusResumeIncomplete is what the upload target answers for every
	// chunk but the last.
	statusResumeIncomplete = 308
)

// ProgressFunc receives the number of bytes acknowledged so far.
type ProgressFunc func(sent, total int64)

type Config struct {
	ChunkSize   int64
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
	Progress    ProgressFunc
	Logger      zerolog.Logger
}

// StatusError is an answer the uploader cannot continue from.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload target returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload target returned status %d: %s", e.StatusCode, e.Body)
}

type Uploader struct {
	chunkSize   int64
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	progress    ProgressFunc
	logger      zerolog.Logger
}

func New(cfg Config) *Uploader {
	u := &Uploader{
		chunkSize:   cfg.ChunkSize,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		http:        cfg.HTTPClient,
		progress:    cfg.Progress,
		logger:      cfg.Logger.With().Str("component", "uploader").Logger(),
	}
	if u.chunkSize <= 0 {
		u.chunkSize = defaultChunkSize
	}
	if u.maxAttempts <= 0 {
		u.maxAttempts = defaultMaxAttempts
	}
	if u.backoff <= 0 {
		u.backoff = defaultBackoff
	}
	if u.http == nil {
		u.http = &http.Client{}
	}
	return u
}

// Upload PUTs size bytes of src to targetURL. Each chunk is retried on
// network errors and 5xx answers with a linear backoff.
func (u *Uploader) Upload(ctx context.Context, targetURL string, src io.ReaderAt, size int64, contentType string) error {
	if strings.TrimSpace(targetURL) == "" {
		return errors.New("upload url is empty")
	}
	if size < 0 {
		return fmt.Errorf("invalid size %d", size)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var offset int64
	for {
		end := offset + u.chunkSize
		if end > size {
			end = size
		}

		next, done, err := u.sendChunk(ctx, targetURL, src, offset, end, size, contentType)
		if err != nil {
			return err
		}
		if done {
			u.report(size, size)
			return nil
		}
		if next <= offset {
			return fmt.Errorf("upload target made no progress at byte %d", offset)
		}
		offset = next
		u.report(offset, size)
	}
}

func (u *Uploader) report(sent, total int64) {
	if u.progress != nil {
		u.progress(sent, total)
	}
}

// sendChunk returns the offset to continue from, or done once the target
// has the whole file.
func (u *Uploader) sendChunk(ctx context.Context, targetURL string, src io.ReaderAt, start, end, total int64, contentType string) (int64, bool, error) {
	var lastErr error
	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := u.backoff * time.Duration(attempt)
			u.logger.Warn().Err(lastErr).Int("attempt", attempt).Int64("offset", start).Dur("backoff", backoff).Msg("retrying chunk")
			select {
			case <-ctx.Done():
				return 0, false, ctx.Err()
			case <-time.After(backoff):
			}
		}

		next, done, err := u.put(ctx, targetURL, src, start, end, total, contentType)
		if err == nil {
			return next, done, nil
		}
		if !retriable(err) || ctx.Err() != nil {
			return 0, false, err
		}
		lastErr = err
	}
	return 0, false, fmt.Errorf("upload chunk at byte %d: %w", start, lastErr)
}

func (u *Uploader) put(ctx context.Context, targetURL string, src io.ReaderAt, start, end, total int64, contentType string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, targetURL, io.NewSectionReader(src, start, end-start))
	if err != nil {
		return 0, false, err
	}
	req.ContentLength = end - start
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Range", contentRange(start, end, total))

	resp, err := u.http.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		return total, true, nil
	case resp.StatusCode == statusResumeIncomplete:
		_, _ = io.Copy(io.Discard, resp.Body)
		if received, ok := parseRange(resp.Header.Get("Range")); ok {
			return received, false, nil
		}
		return end, false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, false, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func contentRange(start, end, total int64) string {
	if total == 0 {
		return "bytes */0"
	}
	return fmt.Sprintf("bytes %d-%d/%d", start, end-1, total)
}

// parseRange reads a "bytes=0-N" acknowledgement and returns N+1.
func parseRange(header string) (int64, bool) {
	value, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, false
	}
	_, last, ok := strings.Cut(value, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n + 1, true
}

func retriable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}
