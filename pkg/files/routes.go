package files

import (
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the file routes on the given group.
// Downloads and icons are open to any authenticated caller; write gates the
// uploads and the move.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, store *filestore.Store, write echo.MiddlewareFunc) *Service {
	fileService := NewService(db, store)

	h := &handler{fileService: fileService}

	g.POST("/upload/form", h.uploadForm, write)
	g.POST("/upload/direct", h.uploadDirect, write)
	g.POST("/move/upload", h.moveUpload, write)
	g.GET("/download/uploaded/*", h.downloadUploaded)
	g.GET("/download/*", h.download)
	g.GET("/icon/:id", h.icon)

	return fileService
}
