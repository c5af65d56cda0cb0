package events

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers the SSE stream on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, bus *Bus) {
	h := &handler{bus: bus}

	g.GET("", h.stream)
}
