package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nebulosa/api/pkg/apperr"
)

// StreamEvent is one frame of the progress stream.
type StreamEvent struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StreamSubscription is an open progress stream. Events delivers frames
// in order; the channel closes when the connection ends, whether by
// Close or by transport loss. The consumer decides which one it was.
type StreamSubscription struct {
	Events <-chan StreamEvent

	cancel context.CancelFunc
}

// Close tears the subscription down. Safe to call multiple times.
func (s *StreamSubscription) Close() {
	s.cancel()
}

// OpenStream connects to the server's event stream. The stream itself
// is never retried: on transport loss the channel simply closes and the
// session decides how to degrade.
func (c *Client) OpenStream(ctx context.Context) (*StreamSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, apperr.New(apperr.CodeStreamLost, "Connection lost", "Could not open the progress stream.")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, apperr.HTTPStatus(resp.StatusCode)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &StreamSubscription{Events: events, cancel: cancel}, nil
}
