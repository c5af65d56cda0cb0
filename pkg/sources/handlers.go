package sources

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/auth"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
)

type sourceHandler struct {
	sourceService   *Service
	defaultPageSize int
}

func (h *sourceHandler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateSourcePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := CreateSourceOptions{
		EbookID:  params.EbookID,
		FormatID: params.FormatID,
		FilePath: params.FilePath,
		Quality:  params.Quality,
	}
	if claim := auth.ClaimFromContext(c); claim != nil {
		opts.CreatedBy = &claim.Subject
	}

	source, err := h.sourceService.Create(ctx, opts)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, source))
}

func (h *sourceHandler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Source")
	}

	source, err := h.sourceService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, source))
}

func (h *sourceHandler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Source")
	}

	params := UpdateSourcePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	source, err := h.sourceService.Update(ctx, id, UpdateSourceOptions{
		Version: params.Version,
		Quality: params.Quality,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, source))
}

func (h *sourceHandler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Source")
	}

	if err := h.sourceService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *sourceHandler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.sourceService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *sourceHandler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	sources, err := h.sourceService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, sources))
}

func (h *sourceHandler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.sourceService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
