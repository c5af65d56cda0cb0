package genres

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
)

type handler struct {
	genreService    *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateGenrePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	genre, err := h.genreService.Create(ctx, CreateGenreOptions{
		Name: params.Name,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, genre))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Genre")
	}

	genre, err := h.genreService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, genre))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Genre")
	}

	params := UpdateGenrePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	genre, err := h.genreService.Update(ctx, id, UpdateGenreOptions{
		Version: params.Version,
		Name:    params.Name,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, genre))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Genre")
	}

	if err := h.genreService.Delete(ctx, id); err != nil {
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

	page, err := h.genreService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	genres, err := h.genreService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, genres))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.genreService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
