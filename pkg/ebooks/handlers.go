package ebooks

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/auth"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
)

type handler struct {
	ebookService    *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateEbookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := CreateEbookOptions{
		Title:       params.Title,
		Description: params.Description,
		SeriesID:    params.SeriesID,
		SeriesIndex: params.SeriesIndex,
		LanguageID:  params.LanguageID,
		AuthorIDs:   params.AuthorIDs,
		GenreIDs:    params.GenreIDs,
	}
	if claim := auth.ClaimFromContext(c); claim != nil {
		opts.CreatedBy = &claim.Subject
	}

	ebook, err := h.ebookService.Create(ctx, opts)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, ebook))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Ebook")
	}

	ebook, err := h.ebookService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, ebook))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Ebook")
	}

	params := UpdateEbookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ebook, err := h.ebookService.Update(ctx, id, UpdateEbookOptions{
		Version:     params.Version,
		Title:       params.Title,
		Description: params.Description,
		SeriesID:    params.SeriesID,
		SeriesIndex: params.SeriesIndex,
		LanguageID:  params.LanguageID,
		AuthorIDs:   params.AuthorIDs,
		GenreIDs:    params.GenreIDs,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, ebook))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Ebook")
	}

	if err := h.ebookService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) attachCover(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Ebook")
	}

	params := AttachCoverPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ebook, err := h.ebookService.AttachCover(ctx, id, params.FilePath)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, ebook))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.ebookService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	ebooks, err := h.ebookService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, ebooks))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.ebookService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
