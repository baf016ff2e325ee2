package tasks

import (
	"fmt"
	"testing"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/stretchr/testify/assert"
)

func TestCounts(t *testing.T) {
	counts := Counts(everyCode())

	assert.Equal(t, 10, counts[status.All])
	assert.Equal(t, 1, counts[status.Pending])
	assert.Equal(t, 1, counts[status.Preparing])
	assert.Equal(t, 1, counts[status.Ready])
	assert.Equal(t, 3, counts[status.Uploading])
	assert.Equal(t, 1, counts[status.Completed])
	assert.Equal(t, 3, counts[status.Failed])
	assert.Equal(t, 0, counts[status.Unknown])

	t.Run("Unknown Codes", func(t *testing.T) {
		counts := Counts([]models.TaskInstance{task("1", "123"), task("2", "001")})
		assert.Equal(t, 2, counts[status.All])
		assert.Equal(t, 1, counts[status.Unknown])
		assert.Equal(t, 0, counts[status.Failed])
	})
}

func TestFilter(t *testing.T) {
	tasks := everyCode()

	uploading := Filter(tasks, status.Uploading)
	var codes []string
	for _, t := range uploading {
		codes = append(codes, t.StatusCode)
	}
	assert.Equal(t, []string{"201", "300", "301"}, codes)

	assert.Len(t, Filter(tasks, status.All), 10)
	assert.Len(t, Filter(tasks, status.Failed), 3)
	assert.Empty(t, Filter(nil, status.Pending))
}

func manyTasks(n int, code string) []models.TaskInstance {
	out := make([]models.TaskInstance, n)
	for i := range out {
		out[i] = task(fmt.Sprint(i+1), code)
	}
	return out
}

func TestPager(t *testing.T) {
	t.Run("Twenty Five Items", func(t *testing.T) {
		tasks := manyTasks(25, "001")
		p := NewPager(0)
		assert.Equal(t, DefaultPageSize, p.Size())

		view := p.View(tasks)
		assert.Equal(t, 1, view.Page)
		assert.Equal(t, 3, view.Pages)
		assert.Len(t, view.Items, 10)

		assert.True(t, p.SetPage(3, view.Total))
		view = p.View(tasks)
		assert.Len(t, view.Items, 5)
		assert.Equal(t, "21", view.Items[0].TaskID)

		assert.False(t, p.SetPage(0, view.Total))
		assert.Equal(t, 3, p.Page())
		assert.False(t, p.SetPage(4, view.Total))
		assert.Equal(t, 3, p.Page())
	})

	t.Run("SetFilter Resets Page", func(t *testing.T) {
		tasks := append(manyTasks(25, "001"), task("x", "999"))
		p := NewPager(10)
		assert.True(t, p.SetPage(2, 26))

		p.SetFilter(status.Failed)
		assert.Equal(t, 1, p.Page())
		view := p.View(tasks)
		assert.Equal(t, status.Failed, view.Filter)
		assert.Equal(t, 1, view.Total)
		assert.Equal(t, "x", view.Items[0].TaskID)
	})

	t.Run("Shrinking List Pulls Page Back", func(t *testing.T) {
		p := NewPager(10)
		assert.True(t, p.SetPage(3, 25))

		view := p.View(manyTasks(12, "001"))
		assert.Equal(t, 2, view.Page)
		assert.Len(t, view.Items, 2)
	})

	t.Run("Empty List", func(t *testing.T) {
		p := NewPager(10)
		view := p.View(nil)
		assert.Equal(t, 1, view.Page)
		assert.Equal(t, 1, view.Pages)
		assert.Empty(t, view.Items)
		assert.True(t, p.SetPage(1, 0))
		assert.False(t, p.SetPage(2, 0))
	})

	t.Run("Next And Prev", func(t *testing.T) {
		p := NewPager(10)
		assert.False(t, p.Prev(25))
		assert.True(t, p.Next(25))
		assert.True(t, p.Next(25))
		assert.False(t, p.Next(25))
		assert.Equal(t, 3, p.Page())
		assert.True(t, p.Prev(25))
		assert.Equal(t, 2, p.Page())
	})
}
