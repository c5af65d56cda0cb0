package events

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/segmentio/encoding/json"
)

// keepAliveInterval is how often an SSE comment is injected so proxies keep
// the connection open.
const keepAliveInterval = 10 * time.Second

type handler struct {
	bus *Bus
}

// stream subscribes the connection to the bus and relays every event as an
// SSE frame until the client disconnects or the subscriber is dropped.
func (h *handler) stream(c echo.Context) error {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	log := logger.FromEchoContext(c)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				// Dropped as a slow subscriber.
				return nil
			}
			data, err := json.Marshal(event.Payload)
			if err != nil {
				log.Err(errors.WithStack(err)).Error("marshal event payload error")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
