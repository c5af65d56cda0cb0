package search

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers search routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, index *Index) {
	h := &handler{
		index: index,
	}

	g.GET("", h.search)
}
