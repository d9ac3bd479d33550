package activity

import "github.com/tsiken/backend/internal/models"

const DefaultPageSize = 10

type Page struct {
	Number     int               `json:"page"`
	Size       int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
	TotalItems int               `json:"total_items"`
	Items      []models.LogEntry `json:"items"`
	HasPrev    bool              `json:"has_prev"`
	HasNext    bool              `json:"has_next"`
	Empty      bool              `json:"empty"`
}

func TotalPages(count, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return (count + size - 1) / size
}

// Paginate returns the 1-based page of entries. Page numbers outside
// [1, TotalPages] are clamped. An empty input yields a zero-page result.
func Paginate(entries []models.LogEntry, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := TotalPages(len(entries), size)
	p := Page{Size: size, TotalPages: total, TotalItems: len(entries)}
	if total == 0 {
		p.Empty = true
		p.Items = []models.LogEntry{}
		return p
	}

	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	start := (page - 1) * size
	end := start + size
	if end > len(entries) {
		end = len(entries)
	}

	p.Number = page
	p.Items = entries[start:end]
	p.HasPrev = page > 1
	p.HasNext = page < total
	return p
}

// Pager is a view over a filtered activity log. Changing the filter returns
// to the first page; moves past either end are ignored.
type Pager struct {
	all     []models.LogEntry
	view    []models.LogEntry
	filter  Filter
	size    int
	current int
}

func NewPager(entries []models.LogEntry, size int) *Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	p := &Pager{all: entries, size: size}
	p.refresh()
	return p
}

func (p *Pager) refresh() {
	p.view = p.filter.Apply(p.all)
	p.current = 1
}

// SetFilter replaces the filter and resets to page 1.
func (p *Pager) SetFilter(f Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	p.filter = f
	p.refresh()
	return nil
}

func (p *Pager) SetName(name string) {
	p.filter.Name = name
	p.refresh()
}

func (p *Pager) Filter() Filter { return p.filter }

func (p *Pager) Filtered() []models.LogEntry { return p.view }

func (p *Pager) TotalPages() int { return TotalPages(len(p.view), p.size) }

// Current is the current page number, or 0 when the view is empty.
func (p *Pager) Current() int {
	if p.TotalPages() == 0 {
		return 0
	}
	return p.current
}

func (p *Pager) Page() Page {
	return Paginate(p.view, p.current, p.size)
}

func (p *Pager) GoTo(n int) bool {
	if n < 1 || n > p.TotalPages() || n == p.current {
		return false
	}
	p.current = n
	return true
}

func (p *Pager) Next() bool { return p.GoTo(p.current + 1) }

func (p *Pager) Prev() bool { return p.GoTo(p.current - 1) }
