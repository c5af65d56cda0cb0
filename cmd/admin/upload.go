package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mbs4/mbs4/pkg/client"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// seriesFlagRe splits "Name #N" into title and index.
var seriesFlagRe = regexp.MustCompile(`^(.*?)\s*#(\d+)\s*$`)

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "upload an ebook file and catalog it on a running server",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of the server",
				EnvVars: []string{"MBS4_SERVER"},
				Value:   "http://127.0.0.1:3000",
			},
			&cli.StringFlag{
				Name:    "email",
				Usage:   "account to log in with",
				EnvVars: []string{"MBS4_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "password for --email",
				EnvVars: []string{"MBS4_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token, instead of --email and --password",
				EnvVars: []string{"MBS4_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "override the extracted title",
			},
			&cli.StringSliceFlag{
				Name:  "author",
				Usage: `override the extracted authors; "Last, First", repeatable`,
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "override the extracted language (two-letter code)",
			},
			&cli.StringFlag{
				Name:  "series",
				Usage: `override the extracted series; "Name #N"`,
			},
			&cli.StringSliceFlag{
				Name:  "genre",
				Usage: "override the extracted genres; repeatable",
			},
		},
		Action: uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	ctx := c.Context

	file := c.Args().First()
	if file == "" {
		return errors.New("an ebook file argument is required")
	}

	cl, err := client.New(c.String("server"))
	if err != nil {
		return err
	}

	switch {
	case c.String("token") != "":
		cl.SetToken(c.String("token"))
	case c.String("email") != "" && c.String("password") != "":
		if err := cl.Login(ctx, c.String("email"), c.String("password")); err != nil {
			return err
		}
	default:
		return errors.New("authenticate with --token or with --email and --password")
	}

	overrides := client.Overrides{
		Title:    c.String("title"),
		Language: c.String("language"),
		Genres:   c.StringSlice("genre"),
	}
	for _, raw := range c.StringSlice("author") {
		overrides.Authors = append(overrides.Authors, parseAuthorFlag(raw))
	}
	if raw := c.String("series"); raw != "" {
		overrides.Series = parseSeriesFlag(raw)
	}

	ebook, err := cl.Publish(ctx, file, overrides)
	if err != nil {
		return err
	}

	fmt.Printf("Cataloged %q as ebook %d\n", ebook.Title, ebook.ID)
	return nil
}

// parseAuthorFlag reads "Last, First"; without a comma the whole value is
// the last name.
func parseAuthorFlag(raw string) metadata.Author {
	last, first, found := strings.Cut(raw, ",")
	if !found {
		return metadata.Author{LastName: strings.TrimSpace(raw)}
	}
	return metadata.Author{
		LastName:  strings.TrimSpace(last),
		FirstName: strings.TrimSpace(first),
	}
}

// parseSeriesFlag reads "Name #N"; without the index marker the whole value
// is the title.
func parseSeriesFlag(raw string) *metadata.Series {
	if m := seriesFlagRe.FindStringSubmatch(raw); m != nil {
		index, err := strconv.ParseInt(m[2], 10, 64)
		if err == nil {
			return &metadata.Series{Title: strings.TrimSpace(m[1]), Index: index}
		}
	}
	return &metadata.Series{Title: strings.TrimSpace(raw)}
}
