package tasks

import (
	"fmt"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/status"
)

// Update represents a change in the registry or the outcome of a command sent through it.
//
// Used to send real-time updates to the CLI, TUI or API layer for display.
type Update struct {
	Phase   Phase  // What happened
	TaskID  string // Task the update is about, empty for list-wide updates
	Total   int    // Number of tasks held after a refresh
	Message string // Human-readable message for display
	Err     error  // Set on failures
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase enumerates registry events.
type Phase int

const (
	RefreshStarted Phase = iota
	RefreshCompleted
	RefreshFailed
	DetailFetched
	DetailFailed
	StepRetried
	StepRetryFailed
	StageTriggered
	StageTriggerFailed
	Cleared
)

func (p Phase) String() string {
	switch p {
	case RefreshStarted:
		return "refresh_started"
	case RefreshCompleted:
		return "refresh_completed"
	case RefreshFailed:
		return "refresh_failed"
	case DetailFetched:
		return "detail_fetched"
	case DetailFailed:
		return "detail_failed"
	case StepRetried:
		return "step_retried"
	case StepRetryFailed:
		return "step_retry_failed"
	case StageTriggered:
		return "stage_triggered"
	case StageTriggerFailed:
		return "stage_trigger_failed"
	case Cleared:
		return "cleared"
	default:
		return ""
	}
}

// Failed reports whether the update carries an error.
func (u Update) Failed() bool {
	return u.Err != nil
}

func refreshStartedUpdate() Update {
	return Update{Phase: RefreshStarted, Message: "Refreshing tasks..."}
}

func refreshCompletedUpdate(total int) Update {
	return Update{Phase: RefreshCompleted, Total: total, Message: fmt.Sprintf("Loaded %d tasks", total)}
}

func refreshFailedUpdate(kept int, err error) Update {
	return Update{
		Phase:   RefreshFailed,
		Total:   kept,
		Message: fmt.Sprintf("Refresh failed, keeping %d tasks: %v", kept, err),
		Err:     err,
	}
}

func detailFetchedUpdate(d *models.TaskDetail) Update {
	return Update{
		Phase:   DetailFetched,
		TaskID:  d.TaskID,
		Message: fmt.Sprintf("Fetched %s (%s)", d.Title, status.Classify(d.StatusCode).Label),
		Data:    d,
	}
}

func detailFailedUpdate(id string, err error) Update {
	return Update{Phase: DetailFailed, TaskID: id, Message: fmt.Sprintf("Could not load task %s: %v", id, err), Err: err}
}

func stepRetriedUpdate(id, step string) Update {
	return Update{Phase: StepRetried, TaskID: id, Message: fmt.Sprintf("✓ Retry requested: %s", status.StepLabel(step))}
}

func stepRetryFailedUpdate(id, step string, err error) Update {
	return Update{
		Phase:   StepRetryFailed,
		TaskID:  id,
		Message: fmt.Sprintf("✗ Retry of %s failed: %v", status.StepLabel(step), err),
		Err:     err,
	}
}

func stageTriggeredUpdate(id string, trigger status.Trigger) Update {
	return Update{Phase: StageTriggered, TaskID: id, Message: fmt.Sprintf("✓ Started %s upload", trigger)}
}

func stageTriggerFailedUpdate(id string, trigger status.Trigger, err error) Update {
	return Update{
		Phase:   StageTriggerFailed,
		TaskID:  id,
		Message: fmt.Sprintf("✗ Could not start %s upload: %v", trigger, err),
		Err:     err,
	}
}

func clearedUpdate() Update {
	return Update{Phase: Cleared, Message: "Task state cleared"}
}
