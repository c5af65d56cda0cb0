package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mbs4/mbs4/pkg/auth"
	"github.com/mbs4/mbs4/pkg/authors"
	"github.com/mbs4/mbs4/pkg/binder"
	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/convert"
	"github.com/mbs4/mbs4/pkg/ebooks"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/events"
	"github.com/mbs4/mbs4/pkg/files"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/formats"
	"github.com/mbs4/mbs4/pkg/genres"
	"github.com/mbs4/mbs4/pkg/languages"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/search"
	"github.com/mbs4/mbs4/pkg/series"
	"github.com/mbs4/mbs4/pkg/sources"
	"github.com/mbs4/mbs4/pkg/users"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, store *filestore.Store, index *search.Index, wrkr *convert.Worker, bus *events.Bus) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.UploadLimitMB)))
	if cfg.CORS {
		e.Use(middleware.CORS())
	}

	health.RegisterRoutes(e)

	secret, err := auth.LoadOrCreateSecret(cfg.SecretFile())
	if err != nil {
		return nil, err
	}
	oidcCfg, err := config.LoadOIDC(cfg.OIDCConfigPath)
	if err != nil {
		return nil, err
	}

	userService := users.NewService(db)
	sessionStore := auth.NewMemoryStore(auth.SessionTTL)
	authService := auth.NewService(userService, sessionStore, secret, cfg, oidcCfg)

	authGroup := e.Group("/auth")
	authMiddleware := auth.RegisterRoutesWithGroup(authGroup, authService, auth.NewLoginLimiter(), cfg.BaseURL)

	registerAPIRoutes(e, cfg, db, store, index, wrkr, bus, authMiddleware)

	if cfg.StaticDir != "" {
		e.Static("/", cfg.StaticDir)
	}

	e.RouteNotFound("/*", notFoundHandler)
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

// registerAPIRoutes registers every authenticated route group. Reads are
// open to any valid token; writes require the trusted or admin role, and
// deletes, merges, and user management require admin.
func registerAPIRoutes(e *echo.Echo, cfg *config.Config, db *bun.DB, store *filestore.Store, index *search.Index, wrkr *convert.Worker, bus *events.Bus, authMiddleware *auth.Middleware) {
	write := authMiddleware.RequireRole(models.RoleTrusted, models.RoleAdmin)
	admin := authMiddleware.RequireRole(models.RoleAdmin)

	ebookGroup := e.Group("/api/ebook")
	ebookGroup.Use(authMiddleware.Authenticate)
	ebooks.RegisterRoutesWithGroup(ebookGroup, db, index, store, cfg.DefaultPageSize, write, admin)

	authorGroup := e.Group("/api/author")
	authorGroup.Use(authMiddleware.Authenticate)
	authors.RegisterRoutesWithGroup(authorGroup, db, index, cfg.DefaultPageSize, write, admin)

	seriesGroup := e.Group("/api/series")
	seriesGroup.Use(authMiddleware.Authenticate)
	series.RegisterRoutesWithGroup(seriesGroup, db, index, cfg.DefaultPageSize, write, admin)

	genreGroup := e.Group("/api/genre")
	genreGroup.Use(authMiddleware.Authenticate)
	genres.RegisterRoutesWithGroup(genreGroup, db, cfg.DefaultPageSize, write, admin)

	languageGroup := e.Group("/api/language")
	languageGroup.Use(authMiddleware.Authenticate)
	languages.RegisterRoutesWithGroup(languageGroup, db, cfg.DefaultPageSize, write, admin)

	formatGroup := e.Group("/api/format")
	formatGroup.Use(authMiddleware.Authenticate)
	formats.RegisterRoutesWithGroup(formatGroup, db, cfg.DefaultPageSize, write, admin)

	sourceGroup := e.Group("/api/source")
	sourceGroup.Use(authMiddleware.Authenticate)
	sources.RegisterRoutesWithGroup(sourceGroup, db, store, cfg.DefaultPageSize, write, admin)

	conversionGroup := e.Group("/api/conversion")
	conversionGroup.Use(authMiddleware.Authenticate)
	sources.RegisterConversionRoutesWithGroup(conversionGroup, db, store, cfg.DefaultPageSize, write, admin)

	// User management is admin territory wholesale, reads included.
	userGroup := e.Group("/api/user")
	userGroup.Use(authMiddleware.Authenticate)
	userGroup.Use(admin)
	users.RegisterRoutesWithGroup(userGroup, db, cfg.DefaultPageSize)

	convertGroup := e.Group("/api/convert")
	convertGroup.Use(authMiddleware.Authenticate)
	convert.RegisterRoutesWithGroup(convertGroup, wrkr, write)

	filesGroup := e.Group("/files")
	filesGroup.Use(authMiddleware.Authenticate)
	files.RegisterRoutesWithGroup(filesGroup, db, store, write)

	eventsGroup := e.Group("/events")
	eventsGroup.Use(authMiddleware.Authenticate)
	events.RegisterRoutesWithGroup(eventsGroup, bus)

	searchGroup := e.Group("/search")
	searchGroup.Use(authMiddleware.Authenticate)
	search.RegisterRoutesWithGroup(searchGroup, index)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
