package domain

// Role is a named permission bucket a user can hold.
type Role struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description" db:"description"`
}

// RolePage is one window of a filtered role listing. Total counts every
// matching row, not only the ones in Roles.
type RolePage struct {
	Roles    []Role
	Total    int64
	Page     int
	PageSize int
}

// TotalPages reports how many pages of PageSize the filtered set spans.
func (p RolePage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}
