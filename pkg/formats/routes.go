package formats

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the format routes on the given group.
// Reads are open to any authenticated caller; write gates writes and admin
// gates deletes.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, defaultPageSize int, write, admin echo.MiddlewareFunc) *Service {
	formatService := NewService(db)

	h := &handler{
		formatService:   formatService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)

	return formatService
}
