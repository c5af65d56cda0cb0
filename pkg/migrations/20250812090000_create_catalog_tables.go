package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE languages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				name TEXT NOT NULL,
				code TEXT NOT NULL COLLATE NOCASE UNIQUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE genres (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				name TEXT NOT NULL COLLATE NOCASE UNIQUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE formats (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				name TEXT NOT NULL,
				extension TEXT NOT NULL COLLATE NOCASE UNIQUE,
				mime_type TEXT NOT NULL COLLATE NOCASE UNIQUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE authors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				last_name TEXT NOT NULL,
				first_name TEXT,
				description TEXT,
				created_by TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_authors_last_name ON authors (last_name)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE series (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				title TEXT NOT NULL,
				description TEXT,
				created_by TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_title ON series (title)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE ebooks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				title TEXT NOT NULL,
				description TEXT,
				cover TEXT,
				base_dir TEXT NOT NULL,
				series_id INTEGER REFERENCES series (id),
				series_index INTEGER,
				language_id INTEGER NOT NULL REFERENCES languages (id),
				created_by TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_ebooks_title ON ebooks (title)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_ebooks_series_id ON ebooks (series_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE ebook_authors (
				ebook_id INTEGER NOT NULL REFERENCES ebooks (id) ON DELETE CASCADE,
				author_id INTEGER NOT NULL REFERENCES authors (id),
				PRIMARY KEY (ebook_id, author_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_ebook_authors_author_id ON ebook_authors (author_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE ebook_genres (
				ebook_id INTEGER NOT NULL REFERENCES ebooks (id) ON DELETE CASCADE,
				genre_id INTEGER NOT NULL REFERENCES genres (id),
				PRIMARY KEY (ebook_id, genre_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE sources (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				ebook_id INTEGER NOT NULL REFERENCES ebooks (id) ON DELETE CASCADE,
				format_id INTEGER NOT NULL REFERENCES formats (id),
				location TEXT NOT NULL,
				size INTEGER NOT NULL,
				hash TEXT NOT NULL,
				quality INTEGER,
				created_by TEXT,
				UNIQUE (ebook_id, hash)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE conversions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				source_id INTEGER NOT NULL REFERENCES sources (id) ON DELETE CASCADE,
				format_id INTEGER NOT NULL REFERENCES formats (id),
				location TEXT NOT NULL,
				batch_id TEXT,
				created_by TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				modified TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				email TEXT NOT NULL COLLATE NOCASE UNIQUE,
				name TEXT NOT NULL,
				roles TEXT NOT NULL DEFAULT '[]',
				password_hash TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Common formats so uploads resolve out of the box.
		_, err = db.Exec(`
			INSERT INTO formats (name, extension, mime_type) VALUES
				('EPUB', 'epub', 'application/epub+zip'),
				('Mobipocket', 'mobi', 'application/x-mobipocket-ebook'),
				('Kindle', 'azw3', 'application/vnd.amazon.ebook'),
				('PDF', 'pdf', 'application/pdf'),
				('FictionBook', 'fb2', 'text/fb2+xml'),
				('Comic Book ZIP', 'cbz', 'application/vnd.comicbook+zip'),
				('Plain text', 'txt', 'text/plain'),
				('Rich Text', 'rtf', 'application/rtf'),
				('Word', 'docx', 'application/vnd.openxmlformats-officedocument.wordprocessingml.document'),
				('OpenDocument', 'odt', 'application/vnd.oasis.opendocument.text')
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{
			"users",
			"conversions",
			"sources",
			"ebook_genres",
			"ebook_authors",
			"ebooks",
			"series",
			"authors",
			"formats",
			"genres",
			"languages",
		} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
