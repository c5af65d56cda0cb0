package series

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
	seriesService   *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateSeriesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := CreateSeriesOptions{
		Title:       params.Title,
		Description: params.Description,
	}
	if claim := auth.ClaimFromContext(c); claim != nil {
		opts.CreatedBy = &claim.Subject
	}

	series, err := h.seriesService.Create(ctx, opts)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, series))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Series")
	}

	series, err := h.seriesService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Series")
	}

	params := UpdateSeriesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	series, err := h.seriesService.Update(ctx, id, UpdateSeriesOptions{
		Version:     params.Version,
		Title:       params.Title,
		Description: params.Description,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Series")
	}

	if err := h.seriesService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) merge(c echo.Context) error {
	ctx := c.Request().Context()

	from, err := strconv.ParseInt(c.Param("from"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Series")
	}
	to, err := strconv.ParseInt(c.Param("to"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Series")
	}

	series, err := h.seriesService.Merge(ctx, from, to)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.seriesService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	series, err := h.seriesService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.seriesService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
