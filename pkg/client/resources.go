package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mbs4/mbs4/pkg/authors"
	"github.com/mbs4/mbs4/pkg/convert"
	"github.com/mbs4/mbs4/pkg/ebooks"
	"github.com/mbs4/mbs4/pkg/files"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/mbs4/mbs4/pkg/series"
	"github.com/mbs4/mbs4/pkg/sources"
	"github.com/pkg/errors"
)

// Upload streams a local file to the server's multipart upload endpoint and
// returns where it landed in the store.
func (c *Client) Upload(ctx context.Context, localPath string) (*files.UploadInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrap(err, "open upload file")
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(localPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload/form", pr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload file")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(http.MethodPost, "/files/upload/form", resp)
	}

	info := &files.UploadInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, errors.Wrap(err, "decode upload response")
	}

	return info, nil
}

// ExtractMeta queues metadata extraction for a previously uploaded file and
// returns the operation ticket to watch the event stream for.
func (c *Client) ExtractMeta(ctx context.Context, filePath string, extractCover bool) (*convert.OperationTicket, error) {
	payload := convert.ExtractMetadataPayload{FilePath: filePath, ExtractCover: &extractCover}

	ticket := &convert.OperationTicket{}
	if err := c.postJSON(ctx, "/api/convert/extract_meta", payload, ticket); err != nil {
		return nil, err
	}

	return ticket, nil
}

// ListAuthors returns the authors whose names contain filter.
func (c *Client) ListAuthors(ctx context.Context, filter string) ([]*models.Author, error) {
	page := pagination.Page[*models.Author]{}
	path := "/api/author?page_size=1000&filter=" + url.QueryEscape(filter)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// CreateAuthor creates an author.
func (c *Client) CreateAuthor(ctx context.Context, payload authors.CreateAuthorPayload) (*models.Author, error) {
	author := &models.Author{}
	if err := c.postJSON(ctx, "/api/author", payload, author); err != nil {
		return nil, err
	}
	return author, nil
}

// ListSeries returns the series whose titles contain filter.
func (c *Client) ListSeries(ctx context.Context, filter string) ([]*models.Series, error) {
	page := pagination.Page[*models.Series]{}
	path := "/api/series?page_size=1000&filter=" + url.QueryEscape(filter)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// CreateSeries creates a series.
func (c *Client) CreateSeries(ctx context.Context, payload series.CreateSeriesPayload) (*models.Series, error) {
	s := &models.Series{}
	if err := c.postJSON(ctx, "/api/series", payload, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Languages returns every known language.
func (c *Client) Languages(ctx context.Context) ([]*models.Language, error) {
	languages := []*models.Language{}
	if err := c.getJSON(ctx, "/api/language/all", &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

// Genres returns every known genre.
func (c *Client) Genres(ctx context.Context) ([]*models.Genre, error) {
	genres := []*models.Genre{}
	if err := c.getJSON(ctx, "/api/genre/all", &genres); err != nil {
		return nil, err
	}
	return genres, nil
}

// Formats returns every known file format.
func (c *Client) Formats(ctx context.Context) ([]*models.Format, error) {
	formats := []*models.Format{}
	if err := c.getJSON(ctx, "/api/format/all", &formats); err != nil {
		return nil, err
	}
	return formats, nil
}

// ListEbooks returns the ebooks whose titles contain filter. Relations are
// not loaded; fetch candidates with GetEbook for those.
func (c *Client) ListEbooks(ctx context.Context, filter string) ([]*models.Ebook, error) {
	page := pagination.Page[*models.Ebook]{}
	path := "/api/ebook?page_size=1000&filter=" + url.QueryEscape(filter)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// GetEbook returns one ebook with its relations loaded.
func (c *Client) GetEbook(ctx context.Context, id int64) (*models.Ebook, error) {
	ebook := &models.Ebook{}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/ebook/%d", id), ebook); err != nil {
		return nil, err
	}
	return ebook, nil
}

// CreateEbook creates an ebook.
func (c *Client) CreateEbook(ctx context.Context, payload ebooks.CreateEbookPayload) (*models.Ebook, error) {
	ebook := &models.Ebook{}
	if err := c.postJSON(ctx, "/api/ebook", payload, ebook); err != nil {
		return nil, err
	}
	return ebook, nil
}

// AttachCover attaches an uploaded image as the ebook's cover and returns
// the updated ebook.
func (c *Client) AttachCover(ctx context.Context, ebookID int64, filePath string) (*models.Ebook, error) {
	payload := ebooks.AttachCoverPayload{FilePath: filePath}

	ebook := &models.Ebook{}
	if err := c.postJSON(ctx, fmt.Sprintf("/api/ebook/%d/cover", ebookID), payload, ebook); err != nil {
		return nil, err
	}
	return ebook, nil
}

// CreateSource catalogs an uploaded file as a source of an ebook. The server
// moves the file to its canonical place under books/.
func (c *Client) CreateSource(ctx context.Context, payload sources.CreateSourcePayload) (*models.Source, error) {
	source := &models.Source{}
	if err := c.postJSON(ctx, "/api/source", payload, source); err != nil {
		return nil, err
	}
	return source, nil
}
