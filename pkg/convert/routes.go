package convert

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers the conversion routes on the given group.
// The worker's lifecycle (Start/Shutdown) belongs to the caller.
func RegisterRoutesWithGroup(g *echo.Group, worker *Worker, write echo.MiddlewareFunc) {
	h := &handler{worker: worker}

	g.POST("/extract_meta", h.extractMeta, write)
}
