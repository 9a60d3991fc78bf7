package threats

// PaginatedScans represents a paginated response with data and metadata
type PaginatedScans struct {
	Data       []*ProjectScan `json:"data"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	Total      int64          `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
}
