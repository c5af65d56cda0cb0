package files

import (
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
)

type handler struct {
	fileService *Service
}

func (h *handler) uploadForm(c echo.Context) error {
	ctx := c.Request().Context()

	params := FormUploadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	fh, ok := params.FormFiles["file"]
	if !ok || fh == nil {
		return errcodes.ValidationError(`A "file" form field is required.`)
	}

	f, err := fh.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	info, err := h.fileService.Upload(ctx, UploadOptions{
		OriginalName: fh.Filename,
		ContentType:  fh.Header.Get(echo.HeaderContentType),
		Body:         f,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, info))
}

func (h *handler) uploadDirect(c echo.Context) error {
	ctx := c.Request().Context()
	req := c.Request()

	info, err := h.fileService.Upload(ctx, UploadOptions{
		ContentType: req.Header.Get(echo.HeaderContentType),
		Body:        req.Body,
	})
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, info))
}

func (h *handler) moveUpload(c echo.Context) error {
	ctx := c.Request().Context()

	params := MoveUploadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	info, err := h.fileService.MoveUpload(ctx, params.From, params.To)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, info))
}

func (h *handler) download(c echo.Context) error {
	return h.serveStored(c, storepath.PrefixBooks)
}

func (h *handler) downloadUploaded(c echo.Context) error {
	return h.serveStored(c, storepath.PrefixUpload)
}

func (h *handler) serveStored(c echo.Context, prefix storepath.Prefix) error {
	ctx := c.Request().Context()

	p, err := storepath.New(prefix.String() + "/" + c.Param("*"))
	if err != nil {
		return errcodes.NotFound("File")
	}

	local, contentType, err := h.fileService.StoredFile(ctx, p)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, contentType)
	// Store paths forbid quotes and control characters, so the name can go
	// into the header as-is when it is plain ASCII.
	if name := p.Base(); isASCII(name) {
		res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	}

	return errors.WithStack(c.File(local))
}

func (h *handler) icon(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errcodes.NotFound("Ebook")
	}

	local, err := h.fileService.Icon(ctx, id)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "image/png")
	res.Header().Set("Cache-Control", "public, max-age=86400")

	return errors.WithStack(c.File(local))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
