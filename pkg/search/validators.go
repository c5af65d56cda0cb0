package search

// searchQuery represents the query parameters for full-text search.
type searchQuery struct {
	Query      string `query:"query" json:"query" validate:"required,max=255"`
	NumResults int    `query:"num_results" json:"num_results" default:"10" validate:"min=1,max=1000"`
}

// searchResponse wraps the hits. Rows is never null on the wire.
type searchResponse struct {
	Rows []Hit `json:"rows"`
}
