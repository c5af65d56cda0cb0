package users

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the user routes on the given group. User
// management is admin-only; the server mounts the group behind the admin role
// gate.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, defaultPageSize int) *Service {
	userService := NewService(db)

	h := &handler{
		userService:     userService,
		defaultPageSize: defaultPageSize,
	}

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/count", h.count)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.del)

	return userService
}
