package models

// Pagination describes list response paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes paging metadata for a list response.
func NewPagination(page, size, total int) *Pagination {
	if size <= 0 {
		size = 20
	}
	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}
	return &Pagination{Page: page, PageSize: size, Total: total, TotalPages: totalPages}
}
