package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

const maxEventBytes = 1 << 20

// Watch subscribes to the record's snapshot stream. The first value is the
// current snapshot. The channel holds only the latest undelivered snapshot
// and is closed when the stream ends or ctx is cancelled.
func (c *Client) Watch(ctx context.Context, id string) (<-chan models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/media/"+url.PathEscape(id)+"/events"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeStatusError(resp)
	}

	out := make(chan models.Snapshot, 1)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		_ = readEvents(resp.Body, func(event string, data []byte) bool {
			if event != "snapshot" {
				return true
			}
			var snap models.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return true
			}
			if !snap.Exists {
				snap.Item = nil
			}
			return offerLatest(ctx, out, snap)
		})
	}()
	return out, nil
}

// offerLatest replaces a snapshot the consumer has not read yet.
func offerLatest(ctx context.Context, out chan models.Snapshot, snap models.Snapshot) bool {
	for {
		select {
		case out <- snap:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// readEvents parses a server-sent event stream and calls fn once per
// dispatched event. Comment lines are skipped. It stops when fn returns
// false or the stream ends.
func readEvents(r io.Reader, fn func(event string, data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventBytes)

	var (
		event string
		data  strings.Builder
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 || event != "" {
				name := event
				if name == "" {
					name = "message"
				}
				if !fn(name, []byte(data.String())) {
					return nil
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			}
		}
	}
	return scanner.Err()
}
