package tasks

import (
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/status"
)

// DefaultPageSize is the number of tasks per page.
const DefaultPageSize = 10

// Filter returns the tasks in category c, preserving order. [status.All] returns a copy of every task.
func Filter(tasks []models.TaskInstance, c status.Category) []models.TaskInstance {
	out := make([]models.TaskInstance, 0, len(tasks))
	for _, t := range tasks {
		if status.Matches(t, c) {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns the number of tasks per category, including [status.All] and [status.Unknown].
func Counts(tasks []models.TaskInstance) map[status.Category]int {
	counts := map[status.Category]int{status.All: len(tasks)}
	for _, c := range status.Categories {
		counts[c] = 0
	}
	for _, t := range tasks {
		counts[status.Classify(t.StatusCode).Category]++
	}
	return counts
}

// Page is one rendered page of a filtered task list.
type Page struct {
	Filter status.Category       `json:"filter"`
	Page   int                   `json:"page"`
	Pages  int                   `json:"pages"`
	Total  int                   `json:"total"`
	Items  []models.TaskInstance `json:"items"`
}

// Pager tracks the filter and 1-indexed page of a list view.
type Pager struct {
	size   int
	page   int
	filter status.Category
}

// NewPager returns a pager on page 1 of [status.All]. size <= 0 uses [DefaultPageSize].
func NewPager(size int) *Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pager{size: size, page: 1, filter: status.All}
}

func (p *Pager) Size() int               { return p.size }
func (p *Pager) Page() int               { return p.page }
func (p *Pager) Filter() status.Category { return p.filter }

// Pages returns the number of pages needed for n items. An empty list has one empty page.
func (p *Pager) Pages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + p.size - 1) / p.size
}

// SetFilter switches the category and goes back to page 1.
func (p *Pager) SetFilter(c status.Category) {
	p.filter = c
	p.page = 1
}

// SetPage moves to page when it exists for n filtered items. Out-of-range pages leave the pager unchanged
// and return false.
func (p *Pager) SetPage(page, n int) bool {
	if page < 1 || page > p.Pages(n) {
		return false
	}
	p.page = page
	return true
}

// Next moves forward one page if there is one.
func (p *Pager) Next(n int) bool {
	return p.SetPage(p.page+1, n)
}

// Prev moves back one page if there is one.
func (p *Pager) Prev(n int) bool {
	return p.SetPage(p.page-1, n)
}

// View filters tasks and cuts out the current page. A page left beyond the end by a shrinking list is
// pulled back to the last page.
func (p *Pager) View(tasks []models.TaskInstance) Page {
	filtered := Filter(tasks, p.filter)
	pages := p.Pages(len(filtered))
	if p.page > pages {
		p.page = pages
	}

	start := (p.page - 1) * p.size
	end := min(start+p.size, len(filtered))

	return Page{
		Filter: p.filter,
		Page:   p.page,
		Pages:  pages,
		Total:  len(filtered),
		Items:  filtered[start:end],
	}
}
