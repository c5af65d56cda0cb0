package binder

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=9"`
	Role string `json:"role" validate:"role"`
	Skip string `json:"-"`
}

type listQuery struct {
	Page     int    `json:"page" query:"page" default:"1" validate:"min=1"`
	PageSize int    `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=1000"`
	Filter   string `json:"filter" query:"filter" mod:"trim"`
}

func TestBindJSON(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	t.Run("only accepts json and form content types", func(tt *testing.T) {
		c := newBodyContext(`<name>Fantasy</name>`, echo.MIMEApplicationXML)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), "Unsupported Media Type")
	})

	t.Run("rejects unknown fields", func(tt *testing.T) {
		c := newBodyContext(`{"name":"Fantasy","foo":"bar"}`, echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("names the field on type errors", func(tt *testing.T) {
		c := newBodyContext(`{"name":123}`, echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), `"name" should be of type string`)
	})

	t.Run("applies mod tags before validation", func(tt *testing.T) {
		c := newBodyContext(`{"name":" Fantasy "}`, echo.MIMEApplicationJSON)
		p := createParams{}
		require.NoError(tt, b.Bind(&p, c))
		assert.Equal(tt, "Fantasy", p.Name)
	})

	t.Run("enforces validate tags", func(tt *testing.T) {
		c := newBodyContext(`{"name":"0123456789"}`, echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), "length must be less than or equal to 9 characters")
	})

	t.Run("requires required fields", func(tt *testing.T) {
		c := newBodyContext(`{"role":"admin"}`, echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), `"name" is required`)
	})

	t.Run("rejects unknown roles", func(tt *testing.T) {
		c := newBodyContext(`{"name":"Fantasy","role":"supreme_leader"}`, echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), `"role" must be a known role`)
	})

	t.Run("accepts known roles in any case", func(tt *testing.T) {
		c := newBodyContext(`{"name":"Fantasy","role":"Admin"}`, echo.MIMEApplicationJSON)
		p := createParams{}
		require.NoError(tt, b.Bind(&p, c))
		assert.Equal(tt, "Admin", p.Role)
	})

	t.Run("rejects an empty body on mutating requests", func(tt *testing.T) {
		c := newBodyContext("", echo.MIMEApplicationJSON)
		err := b.Bind(&createParams{}, c)
		assert.Contains(tt, err.Error(), "Request body can't be empty.")
	})
}

func TestBindQuery(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	t.Run("binds query params and fills defaults", func(tt *testing.T) {
		c := newQueryContext("/?filter=%20doyle%20&page_size=50")
		q := listQuery{}
		require.NoError(tt, b.Bind(&q, c))
		assert.Equal(tt, 1, q.Page)
		assert.Equal(tt, 50, q.PageSize)
		assert.Equal(tt, "doyle", q.Filter)
	})

	t.Run("validates query params", func(tt *testing.T) {
		c := newQueryContext("/?page_size=2000")
		err := b.Bind(&listQuery{}, c)
		assert.Contains(tt, err.Error(), `"page_size" must be less than or equal to 1000`)
	})

	t.Run("rejects unknown query params", func(tt *testing.T) {
		c := newQueryContext("/?bogus=1")
		err := b.Bind(&listQuery{}, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "bogus"`)
	})
}

func newBodyContext(payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, mime)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}

func newQueryContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.GET, target, nil)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}
