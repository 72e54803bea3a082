package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/events"
)

// retryInterval is how long SubscribeEvents waits before reconnecting.
var retryInterval = 2 * time.Second

// SubscribeEvents streams daemon events until ctx is done. It reconnects
// when the daemon goes away. The returned channel is closed when ctx is
// done.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)
		for {
			err := c.streamEvents(ctx, ch)
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).Debug("event stream ended, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(retryInterval):
			}
		}
	}()

	return ch
}

func (c *Client) streamEvents(ctx context.Context, ch chan<- events.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Debugf("failed to close event stream: %v", err)
		}
	}()

	var name string
	var data strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line ends an event.
			if name != "" || data.Len() > 0 {
				ev := events.Event{Name: name, Data: []byte(data.String())}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	return scanner.Err()
}
