package series

import (
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the series routes on the given group.
// Reads are open to any authenticated caller; write gates writes and admin
// gates deletes and merges.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, index *search.Index, defaultPageSize int, write, admin echo.MiddlewareFunc) *Service {
	seriesService := NewService(db, index)

	h := &handler{
		seriesService:   seriesService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)
	g.POST("/merge/:from/:to", h.merge, admin)

	return seriesService
}
