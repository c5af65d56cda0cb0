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

type conversionHandler struct {
	conversionService *ConversionService
	defaultPageSize   int
}

func (h *conversionHandler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateConversionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := CreateConversionOptions{
		SourceID: params.SourceID,
		FormatID: params.FormatID,
		FilePath: params.FilePath,
		BatchID:  params.BatchID,
	}
	if claim := auth.ClaimFromContext(c); claim != nil {
		opts.CreatedBy = &claim.Subject
	}

	conversion, err := h.conversionService.Create(ctx, opts)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, conversion))
}

func (h *conversionHandler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Conversion")
	}

	conversion, err := h.conversionService.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, conversion))
}

func (h *conversionHandler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Conversion")
	}

	params := UpdateConversionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	conversion, err := h.conversionService.Update(ctx, id, UpdateConversionOptions{
		Version: params.Version,
		BatchID: params.BatchID,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, conversion))
}

func (h *conversionHandler) del(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Conversion")
	}

	if err := h.conversionService.Delete(ctx, id); err != nil {
		return err
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *conversionHandler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := pagination.Params{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	page, err := h.conversionService.List(ctx, params.Normalize(h.defaultPageSize))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *conversionHandler) listAll(c echo.Context) error {
	ctx := c.Request().Context()

	conversions, err := h.conversionService.ListAll(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, conversions))
}

func (h *conversionHandler) count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.conversionService.Count(ctx)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"count": count}))
}
