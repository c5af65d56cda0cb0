package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/migrations"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/mbs4/mbs4/pkg/users"
	"github.com/mbs4/mbs4/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:    "mbs4-admin",
		Usage:   "administer an mbs4 server and its data",
		Version: version.Version,
		Commands: []*cli.Command{
			createUserCommand(cfg),
			changePasswordCommand(cfg),
			cleanupCommand(cfg),
			migrateCommand(cfg),
			uploadCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("mbs4-admin exited")
	}
}

// dataFlags bind the storage locations the local commands operate on.
func dataFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
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
			Usage:       "database URL (default: sqlite://<data-dir>/mbs4.db)",
			EnvVars:     []string{"MBS4_DATABASE_URL"},
			Destination: &cfg.DatabaseURL,
		},
	}
}

// connect normalizes the config and opens the database without touching the
// schema. The migrate subcommands manage the schema themselves.
func connect(cfg *config.Config) (*bun.DB, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return database.New(cfg)
}

// openDatabase connects and applies any pending migrations so the user
// commands work against a fresh data dir too.
func openDatabase(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	if _, err := migrations.BringUpToDate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func createUserCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "create a user account",
		Flags: append(dataFlags(cfg),
			&cli.StringFlag{Name: "email", Usage: "email address the user logs in with", Required: true},
			&cli.StringFlag{Name: "name", Usage: "display name (default: the email's local part)"},
			&cli.StringFlag{Name: "password", Usage: "initial password", Required: true},
			&cli.StringSliceFlag{Name: "role", Usage: "role to grant (trusted, admin); repeatable"},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context

			roles, err := models.ParseRoles(c.StringSlice("role"))
			if err != nil {
				return errors.WithStack(err)
			}

			email := c.String("email")
			name := c.String("name")
			if name == "" {
				name = email
				if at := strings.IndexByte(email, '@'); at > 0 {
					name = email[:at]
				}
			}

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			password := c.String("password")
			user, err := users.NewService(db).Create(ctx, users.CreateUserOptions{
				Email:    email,
				Name:     name,
				Roles:    roles,
				Password: &password,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created user %s (roles: %s)\n", user.Email, roleNames(user.Roles))
			return nil
		},
	}
}

func roleNames(roles models.RoleList) string {
	if len(roles) == 0 {
		return "none"
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}

func changePasswordCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "change-password",
		Usage: "set a user's password",
		Flags: append(dataFlags(cfg),
			&cli.StringFlag{Name: "email", Usage: "email address of the user", Required: true},
			&cli.StringFlag{Name: "password", Usage: "new password", Required: true},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			email := c.String("email")
			if err := users.NewService(db).SetPassword(ctx, email, c.String("password")); err != nil {
				return err
			}

			fmt.Printf("Password updated for %s\n", email)
			return nil
		},
	}
}

func cleanupCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "remove stale files from the store",
		Flags: append(dataFlags(cfg),
			&cli.BoolFlag{Name: "uploads", Usage: "clean abandoned uploads"},
			&cli.BoolFlag{Name: "all", Usage: "clean uploads plus the derived icon and conversion caches"},
			&cli.DurationFlag{Name: "max-age", Usage: "only remove files older than this", Value: 7 * 24 * time.Hour},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context

			if !c.Bool("uploads") && !c.Bool("all") {
				return errors.New("pass --uploads or --all to choose what to clean")
			}

			if err := cfg.Normalize(); err != nil {
				return err
			}
			store, err := filestore.New(cfg.FilesDir)
			if err != nil {
				return err
			}

			prefixes := []storepath.Prefix{storepath.PrefixUpload}
			if c.Bool("all") {
				prefixes = append(prefixes, storepath.PrefixIcons, storepath.PrefixConverted)
			}

			for _, prefix := range prefixes {
				removed, err := store.Cleanup(ctx, prefix, c.Duration("max-age"))
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d files under %s/\n", removed, prefix)
			}
			return nil
		},
	}
}

func migrateCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage database migrations",
		Flags: dataFlags(cfg),
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					db, err := connect(cfg)
					if err != nil {
						return err
					}
					defer db.Close()

					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}

					if group.ID == 0 {
						fmt.Printf("There are no new migrations to run\n")
						return nil
					}

					fmt.Printf("Migrated to %s\n", group)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "roll back the last migration group",
				Action: func(c *cli.Context) error {
					db, err := connect(cfg)
					if err != nil {
						return err
					}
					defer db.Close()

					migrator := migrations.Migrator(db)
					group, err := migrator.Rollback(c.Context)
					if err != nil {
						return errors.WithStack(err)
					}

					if group.ID == 0 {
						fmt.Printf("There are no groups to roll back\n")
						return nil
					}

					fmt.Printf("Rolled back %s\n", group)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: func(c *cli.Context) error {
					db, err := connect(cfg)
					if err != nil {
						return err
					}
					defer db.Close()

					migrator := migrations.Migrator(db)
					ms, err := migrator.MigrationsWithStatus(c.Context)
					if err != nil {
						return errors.WithStack(err)
					}

					fmt.Printf("Migrations: %s\n", ms)
					fmt.Printf("Unapplied migrations: %s\n", ms.Unapplied())
					fmt.Printf("Last migration group: %s\n", ms.LastGroup())
					return nil
				},
			},
		},
	}
}
