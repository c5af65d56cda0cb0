package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holmesOutput = `Title               : The Adventures of Sherlock Holmes
Author(s)           : Doyle, Arthur Conan [Doyle, Arthur Conan]
Tags                : Detective and mystery stories, Private investigators
Languages           : eng
Published           : 2023-08-16T14:07:21+00:00
Rights              : Public domain in the USA.
Identifiers         : uri:http://www.gutenberg.org/1661
Comments            : A collection of twelve short stories featuring Conan Doyle's legendary detective.
`

func TestParseOutputFull(t *testing.T) {
	t.Parallel()

	meta := parseOutput(holmesOutput)
	assert.Equal(t, "The Adventures of Sherlock Holmes", meta.Title)
	require.Len(t, meta.Authors, 1)
	assert.Equal(t, Author{LastName: "Doyle", FirstName: "Arthur Conan"}, meta.Authors[0])
	assert.Equal(t, []string{"Detective and mystery stories", "Private investigators"}, meta.Genres)
	assert.Equal(t, "eng", meta.Language)
	assert.Nil(t, meta.Series)
	assert.Contains(t, meta.Comments, "twelve short stories")
	assert.Empty(t, meta.CoverFile)
}

func TestParseOutputSeriesAndMultipleLanguages(t *testing.T) {
	t.Parallel()

	out := `Title               : Pěl ďábelské
Author(s)           : Příšerně, Jan & Žluťoučký, Zdeněk
Languages           : ces, eng
Series              : ódy #1
`
	meta := parseOutput(out)
	assert.Equal(t, "Pěl ďábelské", meta.Title)
	require.Len(t, meta.Authors, 2)
	assert.Equal(t, Author{LastName: "Příšerně", FirstName: "Jan"}, meta.Authors[0])
	assert.Equal(t, Author{LastName: "Žluťoučký", FirstName: "Zdeněk"}, meta.Authors[1])
	assert.Equal(t, "ces", meta.Language)
	require.NotNil(t, meta.Series)
	assert.Equal(t, "ódy", meta.Series.Title)
	assert.Equal(t, int64(1), meta.Series.Index)
}

func TestParseOutputShortCommentsDropped(t *testing.T) {
	t.Parallel()

	meta := parseOutput("Comments            : .-.\n")
	assert.Empty(t, meta.Comments)

	meta = parseOutput("Comments            : Four\n")
	assert.Equal(t, "Four", meta.Comments)
}

func TestParseOutputEmpty(t *testing.T) {
	t.Parallel()

	meta := parseOutput("")
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Authors)
	assert.Nil(t, meta.Series)
}

func TestParseAuthors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		expected []Author
	}{
		{
			name:     "last comma first",
			line:     "Doyle, Arthur Conan",
			expected: []Author{{LastName: "Doyle", FirstName: "Arthur Conan"}},
		},
		{
			name: "ampersand split",
			line: "Doyle, Arthur Conan & Wells, Herbert George",
			expected: []Author{
				{LastName: "Doyle", FirstName: "Arthur Conan"},
				{LastName: "Wells", FirstName: "Herbert George"},
			},
		},
		{
			name:     "bracketed annotation stripped",
			line:     "Doyle, Arthur Conan [Doyle, Arthur Conan]",
			expected: []Author{{LastName: "Doyle", FirstName: "Arthur Conan"}},
		},
		{
			name:     "first last order fallback",
			line:     "Arthur Conan Doyle",
			expected: []Author{{LastName: "Doyle", FirstName: "Arthur Conan"}},
		},
		{
			name:     "single word",
			line:     "Homer",
			expected: []Author{{LastName: "Homer"}},
		},
		{
			name: "mixed forms",
			line: "Verne, Jules & Herbert George Wells",
			expected: []Author{
				{LastName: "Verne", FirstName: "Jules"},
				{LastName: "Wells", FirstName: "Herbert George"},
			},
		},
		{
			name:     "empty parts ignored",
			line:     " & Doyle, Arthur & ",
			expected: []Author{{LastName: "Doyle", FirstName: "Arthur"}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, parseAuthors(tt.line))
		})
	}
}

func TestParseSeries(t *testing.T) {
	t.Parallel()

	s := parseSeries("ódy #1")
	require.NotNil(t, s)
	assert.Equal(t, "ódy", s.Title)
	assert.Equal(t, int64(1), s.Index)

	s = parseSeries("Foundation #12")
	require.NotNil(t, s)
	assert.Equal(t, "Foundation", s.Title)
	assert.Equal(t, int64(12), s.Index)

	// Fractional indexes truncate.
	s = parseSeries("Discworld #1.5")
	require.NotNil(t, s)
	assert.Equal(t, int64(1), s.Index)

	// No index marker keeps the whole line as the title.
	s = parseSeries("Lone Title")
	require.NotNil(t, s)
	assert.Equal(t, "Lone Title", s.Title)
	assert.Equal(t, int64(0), s.Index)

	assert.Nil(t, parseSeries("  "))
}
