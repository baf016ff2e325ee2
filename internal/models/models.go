// package models defines the data model for the pipeline sync client
package models

import (
	"errors"
	"time"
)

// StepStatus is the server-reported state of a single [TaskStep].
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Identity is the authenticated subject resolved by the login handshake.
type Identity struct {
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Validate checks that the identity carries a subject.
func (i Identity) Validate() error {
	if i.SubjectID == "" {
		return errors.New("identity subject id is required")
	}
	return nil
}

// AuthChallenge is the scannable token issued at the start of a handshake.
//
// PresentationPayload is opaque to the engines; for the pipeline server it is the QR image URL.
type AuthChallenge struct {
	ChallengeID         string    `json:"challenge_id"`
	PresentationPayload string    `json:"presentation_payload"`
	IssuedAt            time.Time `json:"issued_at"`
}

// TaskInstance is a read replica of one pipeline task. TaskID is its identity.
type TaskInstance struct {
	TaskID            string    `json:"task_id"`
	ExternalRef       string    `json:"external_ref"`
	Title             string    `json:"title"`
	StatusCode        string    `json:"status_code"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	ExternalResultRef string    `json:"external_result_ref,omitempty"`
}

// Validate checks the fields every refresh relies on.
func (t TaskInstance) Validate() error {
	if t.TaskID == "" {
		return errors.New("task id is required")
	}
	return nil
}

// TaskStep is one ordered unit of work within a task. Retryable is decided by the server.
type TaskStep struct {
	StepName     string        `json:"step_name"`
	Order        int           `json:"order"`
	Status       StepStatus    `json:"status"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Retryable    bool          `json:"retryable"`
}

// TaskProgress summarises the step chain of a task.
type TaskProgress struct {
	TotalSteps     int     `json:"total_steps"`
	CompletedSteps int     `json:"completed_steps"`
	FailedSteps    int     `json:"failed_steps"`
	Percentage     float64 `json:"progress_percentage"`
	CurrentStep    string  `json:"current_step,omitempty"`
	IsRunning      bool    `json:"is_running"`
}

// TaskFile is an artifact the pipeline produced for a task. Type is one of video, subtitle, image,
// metadata, audio or other.
type TaskFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Type     string    `json:"type"`
	Modified time.Time `json:"modified"`
}

// TaskFiles is the artifact directory listing of one task.
type TaskFiles struct {
	ExternalRef string     `json:"external_ref"`
	Directory   string     `json:"directory"`
	Files       []TaskFile `json:"files"`
}

// TaskDetail is the on-demand view of a task. It is never merged back into the bulk list.
type TaskDetail struct {
	TaskInstance
	Steps         []TaskStep   `json:"steps"`
	Progress      TaskProgress `json:"progress"`
	SourceURL     string       `json:"source_url,omitempty"`
	GeneratedName string       `json:"generated_title,omitempty"`
	CoverImage    string       `json:"cover_image,omitempty"`
}

// RetryableSteps returns the steps the server allows to be retried, in execution order.
func (d *TaskDetail) RetryableSteps() []TaskStep {
	var steps []TaskStep
	for _, s := range d.Steps {
		if s.Retryable {
			steps = append(steps, s)
		}
	}
	return steps
}

// Step looks up a step by name.
func (d *TaskDetail) Step(name string) (TaskStep, bool) {
	for _, s := range d.Steps {
		if s.StepName == name {
			return s, true
		}
	}
	return TaskStep{}, false
}

// TaskSnapshot is a task set persisted after a successful refresh.
type TaskSnapshot struct {
	ID        string         `json:"id"`
	FetchedAt time.Time      `json:"fetched_at"`
	Tasks     []TaskInstance `json:"tasks"`
}
