package languages

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
)

type handler struct {
	languageService *Service
	defaultPageSize int
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateLanguagePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	language, err := h.languageService.Create(ctx, CreateLanguageOptions{
		Name: params.Name,
		Code: params.Code,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, language))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Language")
	}

	language, err := h.languageService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, language))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Language")
	}

	params := UpdateLanguagePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	language, err := h.languageService.Update(ctx, id, UpdateLanguageOptions{
		Version: params.Version,
		Name:    params.Name,
		Code:    params.Code,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, language))
}

func (h *handler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Language")
	}

	if err := h.languageService.Delete(ctx, id); err != nil {
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

	page, err := h.languageService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	languages, err := h.languageService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, languages))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.languageService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
