package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/events"
)

const maxEventSize = 1 << 20

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream. names filters events; none means all. The returned
// channel is closed when the stream ends.
func (c *Client) SubscribeEvents(ctx context.Context, names ...string) (<-chan events.Event, error) {
	q := url.Values{}
	for _, n := range names {
		q.Add("event", n)
	}
	u := "http://unix/events"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	ch := make(chan events.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := readEvents(resp.Body, func(ev events.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()
	return ch, nil
}

// readEvents parses a text/event-stream body and calls emit for every
// complete event until emit returns false or the body ends.
func readEvents(r io.Reader, emit func(events.Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	var (
		name string
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 || name != "" {
				ev := events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
				if !emit(ev) {
					return nil
				}
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}
