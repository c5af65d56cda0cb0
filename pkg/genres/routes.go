package genres

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the genre routes on the given group.
// Reads are open to any authenticated caller; write gates writes and admin
// gates deletes.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, defaultPageSize int, write, admin echo.MiddlewareFunc) *Service {
	genreService := NewService(db)

	h := &handler{
		genreService:    genreService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)

	return genreService
}
