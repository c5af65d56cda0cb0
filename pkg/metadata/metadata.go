// Package metadata extracts ebook metadata by driving external tools: the
// calibre ebook-meta/ebook-convert binaries plus a headless soffice for
// office formats. All invocations are bounded by a hard timeout.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// DefaultTimeout bounds every external process invocation.
const DefaultTimeout = 240 * time.Second

// maxOfficeProfiles caps the soffice profile pool; each profile directory
// admits one concurrent headless conversion.
const maxOfficeProfiles = 32

// ebook-meta prints one "Label : value" line per field. Compiled once.
var (
	titleRe     = regexp.MustCompile(`(?m)^Title\s*:\s*(.+)`)
	authorsRe   = regexp.MustCompile(`(?m)^Author\(s\)\s*:\s*(.+)`)
	tagsRe      = regexp.MustCompile(`(?m)^Tags\s*:\s*(.+)`)
	languagesRe = regexp.MustCompile(`(?m)^Languages\s*:\s*(.+)`)
	seriesRe    = regexp.MustCompile(`(?m)^Series\s*:\s*(.+)`)
	commentsRe  = regexp.MustCompile(`(?m)^Comments\s*:\s*(.+)`)

	bracketsRe    = regexp.MustCompile(`\[[^\]]*\]`)
	seriesIndexRe = regexp.MustCompile(`^(.*?)\s*#(\d+(?:\.\d+)?)\s*$`)
)

// Author is an extracted author name.
type Author struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name,omitempty"`
}

// Series is an extracted series reference.
type Series struct {
	Title string `json:"title"`
	Index int64  `json:"index"`
}

// Metadata is everything ebook-meta could tell us about a file. CoverFile,
// when set, is an absolute path on the local filesystem; the caller owns
// importing it into the store and removing the temporary.
type Metadata struct {
	Title     string   `json:"title,omitempty"`
	Authors   []Author `json:"authors,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Language  string   `json:"language,omitempty"`
	Series    *Series  `json:"series,omitempty"`
	CoverFile string   `json:"cover_file,omitempty"`
	Comments  string   `json:"comments,omitempty"`
}

// Options configure an Extractor. Zero values select the defaults.
type Options struct {
	MetaBin        string // default "ebook-meta"
	ConvertBin     string // default "ebook-convert"
	SofficeBin     string // default "soffice"
	Timeout        time.Duration
	OfficeProfiles int // default and cap 32
	WorkDir        string // default os.TempDir()
}

// Extractor wraps the external tools. Safe for concurrent use.
type Extractor struct {
	metaBin    string
	convertBin string
	sofficeBin string
	timeout    time.Duration
	workDir    string

	// profiles is a semaphore of leased soffice profile directories.
	profiles chan string
}

// NewExtractor prepares profile directories and returns a ready extractor.
func NewExtractor(opts Options) (*Extractor, error) {
	if opts.MetaBin == "" {
		opts.MetaBin = "ebook-meta"
	}
	if opts.ConvertBin == "" {
		opts.ConvertBin = "ebook-convert"
	}
	if opts.SofficeBin == "" {
		opts.SofficeBin = "soffice"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OfficeProfiles <= 0 || opts.OfficeProfiles > maxOfficeProfiles {
		opts.OfficeProfiles = maxOfficeProfiles
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}

	profileRoot := filepath.Join(opts.WorkDir, "mbs4-soffice")
	profiles := make(chan string, opts.OfficeProfiles)
	for i := 0; i < opts.OfficeProfiles; i++ {
		dir := filepath.Join(profileRoot, fmt.Sprintf("profile-%02d", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
		profiles <- dir
	}

	return &Extractor{
		metaBin:    opts.MetaBin,
		convertBin: opts.ConvertBin,
		sofficeBin: opts.SofficeBin,
		timeout:    opts.Timeout,
		workDir:    opts.WorkDir,
		profiles:   profiles,
	}, nil
}

// ExtractMetadata runs ebook-meta against a local file and parses its
// stdout. With extractCover set it also asks for the embedded cover, written
// to a temporary jpg whose path lands in Metadata.CoverFile.
func (e *Extractor) ExtractMetadata(ctx context.Context, localPath string, extractCover bool) (*Metadata, error) {
	args := []string{localPath}
	coverPath := ""
	if extractCover {
		coverPath = filepath.Join(e.workDir, uuid.NewString()+".jpg")
		args = append(args, "--get-cover", coverPath)
	}

	out, err := e.run(ctx, e.metaBin, args...)
	if err != nil {
		if coverPath != "" {
			os.Remove(coverPath)
		}
		return nil, err
	}

	meta := parseOutput(out)
	if coverPath != "" {
		if stat, statErr := os.Stat(coverPath); statErr == nil && stat.Size() > 0 {
			meta.CoverFile = coverPath
		} else {
			os.Remove(coverPath)
		}
	}
	return meta, nil
}

// officeExtensions are handed to soffice rather than ebook-convert.
var officeExtensions = map[string]bool{
	"doc":  true,
	"docx": true,
	"odt":  true,
	"rtf":  true,
	"sxw":  true,
	"wpd":  true,
}

// ConvertFile converts a local file into the format implied by toPath's
// extension. Office documents go through a pooled headless soffice; anything
// else through ebook-convert.
func (e *Extractor) ConvertFile(ctx context.Context, fromPath, toPath string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fromPath), "."))
	if officeExtensions[ext] {
		return e.convertOffice(ctx, fromPath, toPath)
	}
	_, err := e.run(ctx, e.convertBin, fromPath, toPath)
	return err
}

// convertOffice leases a profile directory so concurrent soffice instances
// never share a user installation.
func (e *Extractor) convertOffice(ctx context.Context, fromPath, toPath string) error {
	var profile string
	select {
	case profile = <-e.profiles:
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	defer func() { e.profiles <- profile }()

	outDir := filepath.Join(profile, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.WithStack(err)
	}

	target := strings.TrimPrefix(filepath.Ext(toPath), ".")
	_, err := e.run(ctx, e.sofficeBin,
		"--headless",
		"-env:UserInstallation=file://"+profile,
		"--convert-to", target,
		"--outdir", outDir,
		fromPath,
	)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(fromPath), filepath.Ext(fromPath))
	produced := filepath.Join(outDir, base+"."+target)
	if err := os.Rename(produced, toPath); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// run executes a tool under the extractor timeout, returning its stdout.
func (e *Extractor) run(ctx context.Context, bin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log := logger.FromContext(ctx)
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", errors.Wrapf(err, "%s failed: %s", bin, detail)
	}

	log.Data(logger.Data{"bin": bin, "duration_ms": time.Since(start).Milliseconds()}).Debug("external tool finished")
	return stdout.String(), nil
}

// parseOutput lifts the labelled lines of ebook-meta stdout into Metadata.
func parseOutput(out string) *Metadata {
	meta := &Metadata{}

	if m := titleRe.FindStringSubmatch(out); m != nil {
		meta.Title = strings.TrimSpace(m[1])
	}
	if m := authorsRe.FindStringSubmatch(out); m != nil {
		meta.Authors = parseAuthors(m[1])
	}
	if m := tagsRe.FindStringSubmatch(out); m != nil {
		for _, tag := range strings.Split(m[1], ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				meta.Genres = append(meta.Genres, tag)
			}
		}
	}
	if m := languagesRe.FindStringSubmatch(out); m != nil {
		first, _, _ := strings.Cut(m[1], ",")
		meta.Language = strings.TrimSpace(first)
	}
	if m := seriesRe.FindStringSubmatch(out); m != nil {
		meta.Series = parseSeries(m[1])
	}
	if m := commentsRe.FindStringSubmatch(out); m != nil {
		if comments := strings.TrimSpace(m[1]); len(comments) >= 4 {
			meta.Comments = comments
		}
	}

	return meta
}

// parseAuthors splits an Author(s) line on '&', drops bracketed annotations,
// and reads each name as "Last, First" when a comma is present, otherwise as
// whitespace-separated words with the final word the last name.
func parseAuthors(line string) []Author {
	line = bracketsRe.ReplaceAllString(line, "")
	var authors []Author
	for _, part := range strings.Split(line, "&") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if last, first, ok := strings.Cut(part, ","); ok {
			authors = append(authors, Author{
				LastName:  strings.TrimSpace(last),
				FirstName: strings.TrimSpace(first),
			})
			continue
		}
		words := strings.Fields(part)
		author := Author{LastName: words[len(words)-1]}
		if len(words) > 1 {
			author.FirstName = strings.Join(words[:len(words)-1], " ")
		}
		authors = append(authors, author)
	}
	return authors
}

// parseSeries reads "<title> #<index>"; a line without the index marker is
// taken as a bare title.
func parseSeries(line string) *Series {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if m := seriesIndexRe.FindStringSubmatch(line); m != nil {
		index, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			return &Series{Title: strings.TrimSpace(m[1]), Index: int64(index)}
		}
	}
	return &Series{Title: line}
}
