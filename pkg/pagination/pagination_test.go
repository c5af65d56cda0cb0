package pagination

import (
	"testing"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAndOffsets(t *testing.T) {
	t.Parallel()

	p := Params{}.Normalize(100)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 100, p.Limit())
	assert.Equal(t, 0, p.Offset())

	p = Params{Page: 3, PageSize: 25}.Normalize(100)
	assert.Equal(t, 25, p.Limit())
	assert.Equal(t, 50, p.Offset())
}

func TestOrderBy(t *testing.T) {
	t.Parallel()

	allowed := map[string]string{
		"title":    "e.title",
		"created":  "e.created",
		"modified": "e.modified",
	}

	tests := []struct {
		name     string
		sort     string
		expected []string
		invalid  string
	}{
		{
			name:     "empty",
			sort:     "",
			expected: nil,
		},
		{
			name:     "single ascending",
			sort:     "title",
			expected: []string{"e.title ASC"},
		},
		{
			name:     "explicit plus",
			sort:     "+title",
			expected: []string{"e.title ASC"},
		},
		{
			name:     "descending",
			sort:     "-created",
			expected: []string{"e.created DESC"},
		},
		{
			name:     "multiple fields",
			sort:     "-modified,title",
			expected: []string{"e.modified DESC", "e.title ASC"},
		},
		{
			name:     "spaces around fields",
			sort:     " title , -created ",
			expected: []string{"e.title ASC", "e.created DESC"},
		},
		{
			name:    "unknown field",
			sort:    "title,password",
			invalid: "password",
		},
		{
			name:    "unknown descending field",
			sort:    "-secret",
			invalid: "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exprs, err := Params{Sort: tt.sort}.OrderBy(allowed)
			if tt.invalid != "" {
				require.Error(t, err)
				var ec *errcodes.Error
				require.ErrorAs(t, err, &ec)
				assert.Equal(t, 422, ec.HTTPCode)
				assert.Contains(t, ec.Message, tt.invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exprs)
		})
	}
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	p := Params{Page: 2, PageSize: 10}
	page := NewPage(p, 35, []string{"a", "b"})
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 35, page.Total)
	assert.Equal(t, []string{"a", "b"}, page.Rows)

	// Exact multiples do not round up.
	page = NewPage(p, 30, []string{})
	assert.Equal(t, 3, page.TotalPages)

	// Empty result keeps rows non-nil and zero pages.
	page = NewPage[string](p, 0, nil)
	assert.Equal(t, 0, page.TotalPages)
	assert.NotNil(t, page.Rows)
	assert.Empty(t, page.Rows)
}
