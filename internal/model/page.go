package model

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest selects a 1-based page of a newest-first listing.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize fills defaults and validates bounds.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Page < 1 {
		return p, NewValidationError("page", "must be >= 1")
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return p, NewValidationError("limit", "must be between 1 and 100")
	}
	return p, nil
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Limit }

// Pagination is the paging envelope returned with every list.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// Page is a single page of results.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPage builds a page with totalPages = ceil(total/limit).
func NewPage[T any](data []T, req PageRequest, total int64) Page[T] {
	if data == nil {
		data = []T{}
	}
	var pages int64
	if req.Limit > 0 {
		pages = (total + int64(req.Limit) - 1) / int64(req.Limit)
	}
	return Page[T]{
		Data: data,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: pages,
		},
	}
}
