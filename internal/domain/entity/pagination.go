package entity

// PaginationParams represents pagination request parameters
type PaginationParams struct {
	Limit  int `json:"limit" query:"limit"`
	Offset int `json:"offset" query:"offset"`
}

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps limit and offset into their allowed ranges.
func (p *PaginationParams) Normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	} else if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PaginationMeta represents pagination metadata in responses
type PaginationMeta struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// NewPaginationMeta creates pagination metadata from parameters and total count
func NewPaginationMeta(params PaginationParams, returned int, total int64) PaginationMeta {
	return PaginationMeta{
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: int64(params.Offset+returned) < total,
	}
}
