// Package status classifies the pipeline server's status codes into display stages and category buckets.
//
// The mapping is a closed table keyed by the raw code. Codes are not ordered by pipeline progress,
// so nothing here compares or does arithmetic on them.
package status

import "github.com/desertthunder/upsync/internal/models"

// Category is the bucket a task is filed under in list views.
type Category string

const (
	All       Category = "all"
	Pending   Category = "pending"
	Preparing Category = "preparing"
	Ready     Category = "ready"
	Uploading Category = "uploading"
	Completed Category = "completed"
	Failed    Category = "failed"
	Unknown   Category = "unknown"
)

// Categories lists the six filterable buckets in display order, without [All] and [Unknown].
var Categories = []Category{Pending, Preparing, Ready, Uploading, Completed, Failed}

// ParseCategory resolves a filter name. The empty string selects [All].
func ParseCategory(s string) (Category, bool) {
	if s == "" || s == string(All) {
		return All, true
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Trigger names a stage that can be started by hand on the server.
type Trigger string

const (
	TriggerVideo    Trigger = "video"
	TriggerSubtitle Trigger = "subtitle"
)

// ParseTrigger resolves a manual trigger name.
func ParseTrigger(s string) (Trigger, bool) {
	switch Trigger(s) {
	case TriggerVideo, TriggerSubtitle:
		return Trigger(s), true
	}
	return "", false
}

// Classification is the display information derived from a status code.
type Classification struct {
	Code        string   `json:"code"`
	Stage       Category `json:"stage"`
	Category    Category `json:"category"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Animated    bool     `json:"animated"`
}

// Known reports whether the code was found in the table.
func (c Classification) Known() bool {
	return c.Category != Unknown
}

type entry struct {
	category    Category
	label       string
	description string
	animated    bool
	triggers    []Trigger
}

var table = map[string]entry{
	"001": {category: Pending, label: "Pending", description: "Submitted, waiting to start processing"},
	"002": {category: Preparing, label: "Processing", description: "Running the preparation chain (download, subtitles, translation, metadata)", animated: true},
	"200": {category: Ready, label: "Ready", description: "Preparation done, queued for video upload", triggers: []Trigger{TriggerVideo}},
	"201": {category: Uploading, label: "Uploading video", description: "Uploading the video", animated: true},
	"299": {category: Failed, label: "Upload failed", description: "Video upload failed", triggers: []Trigger{TriggerVideo}},
	"300": {category: Uploading, label: "Video uploaded", description: "Video uploaded, waiting for the scheduled subtitle upload", triggers: []Trigger{TriggerSubtitle}},
	"301": {category: Uploading, label: "Uploading subtitles", description: "Uploading subtitles", animated: true},
	"399": {category: Failed, label: "Subtitle upload failed", description: "Subtitle upload failed", triggers: []Trigger{TriggerSubtitle}},
	"400": {category: Completed, label: "All done", description: "Every stage of the pipeline is complete"},
	"999": {category: Failed, label: "Task failed", description: "Preparation failed, check the task steps"},
}

// Classify maps a raw status code to its classification. Unrecognized codes classify as [Unknown] with stage [All].
func Classify(code string) Classification {
	e, ok := table[code]
	if !ok {
		return Classification{
			Code:        code,
			Stage:       All,
			Category:    Unknown,
			Label:       "Unknown",
			Description: "Unrecognized status " + quote(code),
		}
	}
	return Classification{
		Code:        code,
		Stage:       e.category,
		Category:    e.category,
		Label:       e.label,
		Description: e.description,
		Animated:    e.animated,
	}
}

// Codes returns every recognized status code.
func Codes() []string {
	return []string{"001", "002", "200", "201", "299", "300", "301", "399", "400", "999"}
}

// AllowedTriggers returns the manual triggers the server accepts for a task in the given status.
func AllowedTriggers(code string) []Trigger {
	e, ok := table[code]
	if !ok || len(e.triggers) == 0 {
		return nil
	}
	out := make([]Trigger, len(e.triggers))
	copy(out, e.triggers)
	return out
}

// CanTrigger reports whether trigger is allowed for code.
func CanTrigger(code string, trigger Trigger) bool {
	for _, t := range AllowedTriggers(code) {
		if t == trigger {
			return true
		}
	}
	return false
}

// Matches reports whether a task belongs in the given filter bucket.
func Matches(task models.TaskInstance, c Category) bool {
	return c == All || Classify(task.StatusCode).Category == c
}

var stepLabels = map[string]string{
	"download_video":      "Download video",
	"generate_subtitles":  "Generate subtitles",
	"translate_subtitles": "Translate subtitles",
	"generate_metadata":   "Generate metadata",
	"upload_to_bilibili":  "Upload video",
	"upload_subtitles":    "Upload subtitles",
}

// StepLabel returns the human name of a pipeline step, or the raw name for steps it does not know.
func StepLabel(name string) string {
	if l, ok := stepLabels[name]; ok {
		return l
	}
	return name
}

// StepStatusLabel returns the human name of a step status.
func StepStatusLabel(s models.StepStatus) string {
	switch s {
	case models.StepPending:
		return "Waiting"
	case models.StepRunning:
		return "Running"
	case models.StepCompleted:
		return "Completed"
	case models.StepFailed:
		return "Failed"
	case models.StepSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
