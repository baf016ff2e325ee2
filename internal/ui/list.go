package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/upsync/internal/formatter"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/status"
)

var (
	_ list.Item = taskItem{}
	_ list.Item = stepItem{}
)

// taskItem wraps [models.TaskInstance] to implement [list.Item].
type taskItem struct {
	task models.TaskInstance
}

func (i taskItem) FilterValue() string { return i.task.Title }
func (i taskItem) Title() string {
	if i.task.Title == "" {
		return "#" + i.task.TaskID
	}
	return i.task.Title
}
func (i taskItem) Description() string {
	desc := fmt.Sprintf("#%s • %s", i.task.TaskID, badge(i.task.StatusCode))
	if !i.task.UpdatedAt.IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, formatter.FormatTime(i.task.UpdatedAt))
	}
	return desc
}

// stepItem wraps [models.TaskStep] to implement [list.Item].
type stepItem struct {
	step models.TaskStep
}

func (i stepItem) FilterValue() string { return i.step.StepName }
func (i stepItem) Title() string {
	title := fmt.Sprintf("%d. %s", i.step.Order, status.StepLabel(i.step.StepName))
	if i.step.Retryable {
		title += " ↻"
	}
	return title
}
func (i stepItem) Description() string {
	desc := stepBadge(i.step.Status)
	if d := formatter.FormatDuration(i.step.Duration); d != "-" {
		desc = fmt.Sprintf("%s • %s", desc, d)
	}
	if i.step.ErrorMessage != "" {
		desc = fmt.Sprintf("%s • %s", desc, formatter.Truncate(i.step.ErrorMessage, 60))
	}
	return desc
}

func taskItems(tasks []models.TaskInstance) []list.Item {
	items := make([]list.Item, len(tasks))
	for i, t := range tasks {
		items[i] = taskItem{task: t}
	}
	return items
}

func stepItems(steps []models.TaskStep) []list.Item {
	items := make([]list.Item, len(steps))
	for i, s := range steps {
		items[i] = stepItem{step: s}
	}
	return items
}
