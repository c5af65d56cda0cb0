package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/convert"
	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/events"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/server"
	"github.com/mbs4/mbs4/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:    "mbs4",
		Usage:   "self-hosted ebook library server",
		Version: version.Version,
		Flags:   serverFlags(cfg),
		Action: func(c *cli.Context) error {
			return run(c.Context, cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("mbs4 exited")
	}
}

// serverFlags binds every server flag straight into the config. Each flag
// can also be set through its MBS4_* environment variable.
func serverFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "port",
			Usage:       "port to listen on",
			EnvVars:     []string{"MBS4_LISTEN_PORT"},
			Value:       cfg.ListenPort,
			Destination: &cfg.ListenPort,
		},
		&cli.StringFlag{
			Name:        "listen-address",
			Usage:       "address to bind",
			EnvVars:     []string{"MBS4_LISTEN_ADDRESS"},
			Value:       cfg.ListenAddress,
			Destination: &cfg.ListenAddress,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "directory for the database, index, and secret",
			EnvVars:     []string{"MBS4_DATA_DIR"},
			Value:       cfg.DataDir,
			Destination: &cfg.DataDir,
		},
		&cli.StringFlag{
			Name:        "files-dir",
			Usage:       "directory for stored ebook files (default: <data-dir>/ebooks)",
			EnvVars:     []string{"MBS4_FILES_DIR"},
			Destination: &cfg.FilesDir,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "sqlite database url (default: sqlite://<data-dir>/mbs4.db)",
			EnvVars:     []string{"MBS4_DATABASE_URL"},
			Destination: &cfg.DatabaseURL,
		},
		&cli.StringFlag{
			Name:        "index-path",
			Usage:       "full-text index path (default: <data-dir>/mbs4-ft-idx.db)",
			EnvVars:     []string{"MBS4_INDEX_PATH"},
			Destination: &cfg.IndexPath,
		},
		&cli.StringFlag{
			Name:        "oidc-config",
			Usage:       "path to the OIDC providers TOML file",
			EnvVars:     []string{"MBS4_OIDC_CONFIG"},
			Destination: &cfg.OIDCConfigPath,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "public URL the frontend is reached on",
			EnvVars:     []string{"MBS4_BASE_URL"},
			Destination: &cfg.BaseURL,
		},
		&cli.StringFlag{
			Name:        "base-backend-url",
			Usage:       "public URL of this API (default: base-url)",
			EnvVars:     []string{"MBS4_BASE_BACKEND_URL"},
			Destination: &cfg.BaseBackendURL,
		},
		&cli.DurationFlag{
			Name:        "token-validity",
			Usage:       "bearer token lifetime",
			EnvVars:     []string{"MBS4_TOKEN_VALIDITY"},
			Value:       cfg.TokenValidity,
			Destination: &cfg.TokenValidity,
		},
		&cli.IntFlag{
			Name:        "upload-limit-mb",
			Usage:       "request body size cap in megabytes",
			EnvVars:     []string{"MBS4_UPLOAD_LIMIT_MB"},
			Value:       cfg.UploadLimitMB,
			Destination: &cfg.UploadLimitMB,
		},
		&cli.IntFlag{
			Name:        "default-page-size",
			Usage:       "page size when a list request does not pass one",
			EnvVars:     []string{"MBS4_DEFAULT_PAGE_SIZE"},
			Value:       cfg.DefaultPageSize,
			Destination: &cfg.DefaultPageSize,
		},
		&cli.BoolFlag{
			Name:        "cors",
			Usage:       "enable permissive CORS headers",
			EnvVars:     []string{"MBS4_CORS"},
			Destination: &cfg.CORS,
		},
		&cli.StringFlag{
			Name:        "static-dir",
			Usage:       "serve static assets from this directory",
			EnvVars:     []string{"MBS4_STATIC_DIR"},
			Destination: &cfg.StaticDir,
		},
		&cli.BoolFlag{
			Name:        "database-debug",
			Usage:       "log every SQL query",
			EnvVars:     []string{"MBS4_DATABASE_DEBUG"},
			Destination: &cfg.DatabaseDebug,
		},
		&cli.StringFlag{
			Name:        "ebook-meta-bin",
			Usage:       "calibre ebook-meta binary",
			EnvVars:     []string{"MBS4_EBOOK_META_BIN"},
			Value:       cfg.EbookMetaBin,
			Destination: &cfg.EbookMetaBin,
		},
		&cli.StringFlag{
			Name:        "ebook-convert-bin",
			Usage:       "calibre ebook-convert binary",
			EnvVars:     []string{"MBS4_EBOOK_CONVERT_BIN"},
			Value:       cfg.EbookConvertBin,
			Destination: &cfg.EbookConvertBin,
		},
		&cli.StringFlag{
			Name:        "soffice-bin",
			Usage:       "libreoffice binary for office conversions",
			EnvVars:     []string{"MBS4_SOFFICE_BIN"},
			Value:       cfg.SofficeBin,
			Destination: &cfg.SofficeBin,
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New()

	log.Info("starting mbs4", logger.Data{"version": version.Version})

	if err := cfg.Normalize(); err != nil {
		return err
	}

	db, err := database.New(cfg)
	if err != nil {
		return errors.Wrap(err, "database")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		return errors.Wrap(err, "migrations")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	store, err := filestore.New(cfg.FilesDir)
	if err != nil {
		return errors.Wrap(err, "file store")
	}

	index, err := server.OpenIndex(ctx, cfg, db)
	if err != nil {
		return errors.Wrap(err, "search index")
	}

	extractor, err := metadata.NewExtractor(metadata.Options{
		MetaBin:    cfg.EbookMetaBin,
		ConvertBin: cfg.EbookConvertBin,
		SofficeBin: cfg.SofficeBin,
	})
	if err != nil {
		return errors.Wrap(err, "metadata extractor")
	}

	bus := events.NewBus()
	wrkr := convert.NewWorker(store, extractor, bus)

	srv, err := server.New(cfg, db, store, index, wrkr, bus)
	if err != nil {
		return errors.Wrap(err, "server")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		// The actual port matters when ListenPort is 0.
		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"address": cfg.ListenAddress, "port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("conversion worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	if err := srv.Shutdown(ctx); err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("conversion worker shutdown")

	bus.Close()
	log.Info("event bus closed")

	if err := index.Close(); err != nil {
		log.Err(err).Error("search index close error")
	}
	log.Info("search index closed")

	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")

	return nil
}
