package client

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/mbs4/mbs4/pkg/authors"
	"github.com/mbs4/mbs4/pkg/ebooks"
	"github.com/mbs4/mbs4/pkg/files"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/series"
	"github.com/mbs4/mbs4/pkg/sources"
	"github.com/pkg/errors"
)

// maxAuthors caps the author credit list on an ebook.
const maxAuthors = 20

// Overrides are user-supplied metadata fields. Any field that is set wins
// over what the extractor reports.
type Overrides struct {
	Title    string
	Authors  []metadata.Author
	Language string
	Series   *metadata.Series
	Genres   []string
}

// Publish uploads a local ebook file and catalogs it: extract metadata,
// apply overrides, resolve the credits against the catalog (creating authors
// and series as needed), find or create the ebook, and register the file as
// a source, which moves it to its canonical place. A cover found during
// extraction is attached when the ebook has none yet.
func (c *Client) Publish(ctx context.Context, localPath string, overrides Overrides) (*models.Ebook, error) {
	info, err := c.Upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	// Subscribe before queueing so a fast extraction cannot finish between
	// the ticket arriving and the stream opening.
	stream, err := c.OpenEvents(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	ticket, err := c.ExtractMeta(ctx, info.FinalPath, true)
	if err != nil {
		return nil, err
	}

	extracted, err := stream.Catch(ticket.ID, DefaultEventTimeout)
	if err != nil {
		return nil, err
	}

	meta := mergeOverrides(extracted, overrides)

	ebook, err := c.resolveEbook(ctx, meta, info)
	if err != nil {
		return nil, err
	}

	format, err := c.resolveFormat(ctx, localPath)
	if err != nil {
		return nil, err
	}

	_, err = c.CreateSource(ctx, sources.CreateSourcePayload{
		EbookID:  ebook.ID,
		FormatID: format.ID,
		FilePath: info.FinalPath,
	})
	if err != nil {
		return nil, err
	}

	if meta.CoverFile != "" && ebook.Cover == nil {
		ebook, err = c.AttachCover(ctx, ebook.ID, meta.CoverFile)
		if err != nil {
			return nil, err
		}
	}

	return ebook, nil
}

// mergeOverrides lays the user's fields over the extracted ones and trims
// the author list to the catalog's limit.
func mergeOverrides(extracted *metadata.Metadata, o Overrides) metadata.Metadata {
	meta := metadata.Metadata{}
	if extracted != nil {
		meta = *extracted
	}

	if o.Title != "" {
		meta.Title = o.Title
	}
	if len(o.Authors) > 0 {
		meta.Authors = o.Authors
	}
	if o.Language != "" {
		meta.Language = o.Language
	}
	if o.Series != nil {
		meta.Series = o.Series
	}
	if len(o.Genres) > 0 {
		meta.Genres = o.Genres
	}

	if len(meta.Authors) > maxAuthors {
		meta.Authors = meta.Authors[:maxAuthors]
	}

	return meta
}

// resolveEbook resolves the merged metadata against the catalog and returns
// a matching existing ebook or a freshly created one.
func (c *Client) resolveEbook(ctx context.Context, meta metadata.Metadata, info *files.UploadInfo) (*models.Ebook, error) {
	title := strings.TrimSpace(meta.Title)
	if title == "" && info.OriginalName != nil {
		name := *info.OriginalName
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if title == "" {
		return nil, errors.New("the file carries no title and none was given")
	}

	authorIDs := make([]int64, 0, len(meta.Authors))
	for _, a := range meta.Authors {
		author, err := c.resolveAuthor(ctx, a)
		if err != nil {
			return nil, err
		}
		authorIDs = append(authorIDs, author.ID)
	}

	var seriesID, seriesIndex *int64
	if meta.Series != nil {
		s, err := c.resolveSeries(ctx, meta.Series.Title)
		if err != nil {
			return nil, err
		}
		idx := meta.Series.Index
		seriesID, seriesIndex = &s.ID, &idx
	}

	if meta.Language == "" {
		return nil, errors.New("the file names no language and none was given")
	}
	lang, err := c.resolveLanguage(ctx, meta.Language)
	if err != nil {
		return nil, err
	}

	genreIDs, err := c.resolveGenres(ctx, meta.Genres)
	if err != nil {
		return nil, err
	}

	existing, err := c.findEbook(ctx, title, authorIDs, seriesID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	payload := ebooks.CreateEbookPayload{
		Title:       title,
		SeriesID:    seriesID,
		SeriesIndex: seriesIndex,
		LanguageID:  lang.ID,
		AuthorIDs:   authorIDs,
		GenreIDs:    genreIDs,
	}
	if meta.Comments != "" {
		payload.Description = &meta.Comments
	}

	return c.CreateEbook(ctx, payload)
}

// resolveAuthor finds an author the provided name can stand in for, or
// creates one.
func (c *Client) resolveAuthor(ctx context.Context, want metadata.Author) (*models.Author, error) {
	lastName := strings.TrimSpace(want.LastName)
	if lastName == "" {
		return nil, errors.New("author last name is empty")
	}
	firstName := strings.TrimSpace(want.FirstName)

	candidates, err := c.ListAuthors(ctx, lastName)
	if err != nil {
		return nil, err
	}
	for _, a := range candidates {
		if a.LastName == lastName && firstNameCompatible(a.FirstName, firstName) {
			return a, nil
		}
	}

	return c.CreateAuthor(ctx, authors.CreateAuthorPayload{
		LastName:  lastName,
		FirstName: firstName,
	})
}

// firstNameCompatible reports whether an existing author's first name can
// stand in for the provided one. Every component of the found name must
// match its counterpart in the provided name: the leading component exactly,
// later ones on the first character, so "Arthur C." covers "Arthur Conan"
// and a bare last name covers everything.
func firstNameCompatible(found, provided string) bool {
	foundParts := strings.Fields(found)
	providedParts := strings.Fields(provided)
	if len(foundParts) > len(providedParts) {
		return false
	}

	for i, part := range foundParts {
		if i == 0 {
			if part != providedParts[0] {
				return false
			}
			continue
		}
		if []rune(part)[0] != []rune(providedParts[i])[0] {
			return false
		}
	}

	return true
}

// resolveSeries finds a series by lower-cased trimmed title, or creates one.
func (c *Client) resolveSeries(ctx context.Context, title string) (*models.Series, error) {
	title = strings.TrimSpace(title)
	want := strings.ToLower(title)

	candidates, err := c.ListSeries(ctx, title)
	if err != nil {
		return nil, err
	}
	for _, s := range candidates {
		if strings.ToLower(strings.TrimSpace(s.Title)) == want {
			return s, nil
		}
	}

	return c.CreateSeries(ctx, series.CreateSeriesPayload{Title: title})
}

// resolveLanguage finds a language by its two-letter code. Unknown codes are
// an error; languages are curated server-side, not created on the fly.
func (c *Client) resolveLanguage(ctx context.Context, code string) (*models.Language, error) {
	code = strings.ToLower(strings.TrimSpace(code))

	languages, err := c.Languages(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range languages {
		if l.Code == code {
			return l, nil
		}
	}

	return nil, errors.Errorf("unknown language code %q", code)
}

// resolveGenres maps genre names to ids by case-insensitive match. Unknown
// names are dropped.
func (c *Client) resolveGenres(ctx context.Context, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}

	known, err := c.Genres(ctx)
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	seen := map[int64]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		for _, g := range known {
			if strings.EqualFold(g.Name, name) && !seen[g.ID] {
				ids = append(ids, g.ID)
				seen[g.ID] = true
				break
			}
		}
	}

	return ids, nil
}

// resolveFormat maps the local file's extension to a known format.
func (c *Client) resolveFormat(ctx context.Context, localPath string) (*models.Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(localPath), "."))
	if ext == "" {
		return nil, errors.Errorf("cannot tell the format of %q: no extension", filepath.Base(localPath))
	}

	formats, err := c.Formats(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		if f.Extension == ext {
			return f, nil
		}
	}

	return nil, errors.Errorf("no format registered for extension %q", ext)
}

// findEbook looks for an existing ebook with the same title, the same author
// set, and the same series. Returns nil when there is none.
func (c *Client) findEbook(ctx context.Context, title string, authorIDs []int64, seriesID *int64) (*models.Ebook, error) {
	candidates, err := c.ListEbooks(ctx, title)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if !strings.EqualFold(strings.TrimSpace(candidate.Title), title) {
			continue
		}

		ebook, err := c.GetEbook(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if !sameAuthors(ebook.Authors, authorIDs) {
			continue
		}
		if !sameSeries(ebook.SeriesID, seriesID) {
			continue
		}
		return ebook, nil
	}

	return nil, nil
}

func sameAuthors(got []*models.Author, want []int64) bool {
	if len(got) != len(want) {
		return false
	}

	ids := make(map[int64]bool, len(got))
	for _, a := range got {
		ids[a.ID] = true
	}
	for _, id := range want {
		if !ids[id] {
			return false
		}
	}

	return true
}

func sameSeries(got, want *int64) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return *got == *want
}
