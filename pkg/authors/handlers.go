package authors

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
	authorService   *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateAuthorPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := CreateAuthorOptions{
		LastName:    params.LastName,
		FirstName:   params.FirstName,
		Description: params.Description,
	}
	if claim := auth.ClaimFromContext(c); claim != nil {
		opts.CreatedBy = &claim.Subject
	}

	author, err := h.authorService.Create(ctx, opts)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, author))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Author")
	}

	author, err := h.authorService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, author))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Author")
	}

	params := UpdateAuthorPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	author, err := h.authorService.Update(ctx, id, UpdateAuthorOptions{
		Version:     params.Version,
		LastName:    params.LastName,
		FirstName:   params.FirstName,
		Description: params.Description,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, author))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Author")
	}

	if err := h.authorService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) merge(c echo.Context) error {
	ctx := c.Request().Context()

	from, err := strconv.ParseInt(c.Param("from"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Author")
	}
	to, err := strconv.ParseInt(c.Param("to"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Author")
	}

	author, err := h.authorService.Merge(ctx, from, to)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, author))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.authorService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	authors, err := h.authorService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, authors))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.authorService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
