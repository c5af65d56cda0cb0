package convert

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	worker *Worker
}

func (h *handler) extractMeta(c echo.Context) error {
	ctx := c.Request().Context()

	params := ExtractMetadataPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	extractCover := true
	if params.ExtractCover != nil {
		extractCover = *params.ExtractCover
	}

	ticket, err := h.worker.Submit(ctx, params.FilePath, extractCover)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, ticket))
}
