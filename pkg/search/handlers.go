package search

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	index *Index
}

func (h *handler) search(c echo.Context) error {
	ctx := c.Request().Context()

	params := searchQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	hits, err := h.index.Search(ctx, params.Query, params.NumResults)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, &searchResponse{Rows: hits}))
}
