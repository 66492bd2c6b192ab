package query

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is a 1-based page request.
type Page struct {
	Current  int
	PageSize int
}

// NewPage clamps the paging parameters to sane values.
func NewPage(current, pageSize int) Page {
	if current < 1 {
		current = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Page{Current: current, PageSize: pageSize}
}

func (p Page) Skip() int  { return (p.Current - 1) * p.PageSize }
func (p Page) Limit() int { return p.PageSize }
