package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/char/asciifolding"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/pkg/errors"
)

// foldingAnalyzer lower-cases tokens and folds diacritics to their ASCII
// base, so "Žluťoučký" and "zlutoucky" hit the same terms.
const foldingAnalyzer = "folding"

func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(foldingAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"char_filters":  []string{asciifolding.Name},
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	indexMapping.DefaultAnalyzer = foldingAnalyzer

	docMapping := bleve.NewDocumentMapping()

	// Text fields feed the composite _all field so a bare query string
	// matches any of them. Stored so hits can reconstruct the document.
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = foldingAnalyzer
	titleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	authorsFieldMapping := bleve.NewTextFieldMapping()
	authorsFieldMapping.Analyzer = foldingAnalyzer
	authorsFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("authors", authorsFieldMapping)

	seriesFieldMapping := bleve.NewTextFieldMapping()
	seriesFieldMapping.Analyzer = foldingAnalyzer
	seriesFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("series", seriesFieldMapping)

	// Exact document type, excluded from _all so searching "author" does
	// not return every author row.
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	typeFieldMapping.Store = true
	typeFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping, nil
}
