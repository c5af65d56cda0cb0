package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mbs4/mbs4/pkg/convert"
	"github.com/mbs4/mbs4/pkg/events"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/pkg/errors"
)

// DefaultEventTimeout bounds how long Catch waits for a matching message.
const DefaultEventTimeout = 10 * time.Second

// eventFrame is one parsed server-sent message.
type eventFrame struct {
	kind string
	data []byte
}

// EventStream is a live connection to the server's event feed. A background
// goroutine parses frames off the wire; Catch consumes them. Close when done.
type EventStream struct {
	cancel context.CancelFunc
	body   io.ReadCloser
	frames chan eventFrame
	done   chan struct{}
	once   sync.Once
}

// OpenEvents connects to the event feed. Open the stream before queueing the
// work whose result it should observe; events published before the
// subscription exists are not replayed.
func (c *Client) OpenEvents(ctx context.Context) (*EventStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		cancel()
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "open event stream")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, apiError(http.MethodGet, "/events", resp)
	}

	s := &EventStream{
		cancel: cancel,
		body:   resp.Body,
		frames: make(chan eventFrame, 16),
		done:   make(chan struct{}),
	}
	go s.read()

	return s, nil
}

// Catch waits for the extraction result whose operation id matches the
// ticket. A matching error event surfaces as an error; every other message
// on the stream is skipped.
func (s *EventStream) Catch(operationID string, timeout time.Duration) (*metadata.Metadata, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return nil, errors.New("event stream closed before the extraction result arrived")
			}

			switch frame.kind {
			case events.KindOf(convert.ExtractMeta{}):
				ev := convert.ExtractMeta{}
				if err := json.Unmarshal(frame.data, &ev); err != nil {
					return nil, errors.Wrap(err, "decode extraction event")
				}
				if ev.OperationID != operationID {
					continue
				}
				if ev.Metadata == nil {
					return nil, errors.New("extraction result carries no metadata")
				}
				return ev.Metadata, nil

			case events.KindOf(convert.ExtractMetaError{}):
				ev := convert.ExtractMetaError{}
				if err := json.Unmarshal(frame.data, &ev); err != nil {
					return nil, errors.Wrap(err, "decode extraction error event")
				}
				if ev.OperationID != operationID {
					continue
				}
				return nil, errors.Errorf("extraction failed: %s", ev.Error)
			}

		case <-timer.C:
			return nil, errors.Errorf("no extraction result within %s", timeout)
		}
	}
}

// Close tears the connection down. Safe to call more than once.
func (s *EventStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		_ = s.body.Close()
	})
}

// read parses "event:"/"data:" lines into frames until the stream ends.
// Keep-alive comments are skipped.
func (s *EventStream) read() {
	defer close(s.frames)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	frame := eventFrame{}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if frame.kind == "" && len(frame.data) == 0 {
				continue
			}
			select {
			case s.frames <- frame:
			case <-s.done:
				return
			}
			frame = eventFrame{}
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "event:"):
			frame.kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			frame.data = []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
