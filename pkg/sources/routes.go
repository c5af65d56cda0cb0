package sources

import (
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the source routes on the given group.
// Reads are open to any authenticated caller; write gates writes and admin
// gates deletes.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, store *filestore.Store, defaultPageSize int, write, admin echo.MiddlewareFunc) *Service {
	sourceService := NewService(db, store)

	h := &sourceHandler{
		sourceService:   sourceService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)

	return sourceService
}

// RegisterConversionRoutesWithGroup registers the conversion routes on the
// given group with the same role gates as sources.
func RegisterConversionRoutesWithGroup(g *echo.Group, db *bun.DB, store *filestore.Store, defaultPageSize int, write, admin echo.MiddlewareFunc) *ConversionService {
	conversionService := NewConversionService(db, store)

	h := &conversionHandler{
		conversionService: conversionService,
		defaultPageSize:   defaultPageSize,
	}

	g.POST("", h.create, write)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update, write)
	g.DELETE("/:id", h.del, admin)

	return conversionService
}
