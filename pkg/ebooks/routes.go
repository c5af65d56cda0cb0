package ebooks

import (
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the ebook routes on the given group.
// Reads are open to any authenticated caller; write gates writes and the
// cover attach, and admin gates deletes.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, index *search.Index, store *filestore.Store, defaultPageSize int, write, admin echo.MiddlewareFunc) *Service {
	ebookService := NewService(db, index, store)

	h := &handler{
		ebookService:    ebookService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)
	g.POST("/:id/cover", h.attachCover, write)

	return ebookService
}
