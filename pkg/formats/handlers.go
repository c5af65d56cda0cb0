package formats

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
)

type handler struct {
	formatService   *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateFormatPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	format, err := h.formatService.Create(ctx, CreateFormatOptions{
		Name:      params.Name,
		Extension: params.Extension,
		MimeType:  params.MimeType,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, format))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Format")
	}

	format, err := h.formatService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, format))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Format")
	}

	params := UpdateFormatPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	format, err := h.formatService.Update(ctx, id, UpdateFormatOptions{
		Version:   params.Version,
		Name:      params.Name,
		Extension: params.Extension,
		MimeType:  params.MimeType,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, format))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Format")
	}

	if err := h.formatService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.formatService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	formats, err := h.formatService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, formats))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.formatService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
