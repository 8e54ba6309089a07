package shared

import "math"

const (
	// DefaultPerPage applies when a listing request omits the limit.
	DefaultPerPage = 20
	// MaxPerPage caps listing limits.
	MaxPerPage = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"pages"`
}

// PageRequest is a normalised page/limit pair.
type PageRequest struct {
	Page    int
	PerPage int
}

// NewPageRequest clamps page and perPage into usable values.
func NewPageRequest(page, perPage int) PageRequest {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// Offset returns the row offset of the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	req := NewPageRequest(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(req.PerPage)))
	return Pagination{Page: req.Page, PerPage: req.PerPage, Total: total, TotalPages: totalPages}
}
