package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/upsync/internal/models"
)

// TimeLayout is the timestamp format the pipeline server writes.
const TimeLayout = "2006-01-02 15:04:05"

// FallbackDisplayName is used when a resolved login carries no user name.
const FallbackDisplayName = "Bilibili user"

// Timestamp decodes the server's "2006-01-02 15:04:05" local times, RFC 3339 times and empty strings.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses a server timestamp. The empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(TimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: unrecognized format %q", s)
	}
	return t, nil
}

// flexString accepts a JSON string or number. The server sends subject ids both ways.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e envelope) ok() bool {
	return e.Code == 0 || e.Code == 200
}

type dataEnvelope[T any] struct {
	envelope
	Data T `json:"data"`
}

type qrCodeResponse struct {
	envelope
	QRCodeURL string `json:"qr_code_url"`
	AuthCode  string `json:"auth_code"`
}

type pollRequest struct {
	AuthCode string `json:"auth_code"`
}

type pollResponse struct {
	envelope
	LoginInfo *struct {
		TokenInfo struct {
			Mid   flexString `json:"mid"`
			Uname string     `json:"uname"`
			Face  string     `json:"face"`
		} `json:"token_info"`
	} `json:"login_info"`
}

func (p pollResponse) identity() models.Identity {
	info := p.LoginInfo.TokenInfo
	name := info.Uname
	if name == "" {
		name = FallbackDisplayName
	}
	return models.Identity{SubjectID: string(info.Mid), DisplayName: name, AvatarURL: info.Face}
}

type statusResponse struct {
	envelope
	IsLoggedIn bool `json:"is_logged_in"`
	User       *struct {
		ID     flexString `json:"id"`
		Name   string     `json:"name"`
		Mid    flexString `json:"mid"`
		Avatar string     `json:"avatar"`
	} `json:"user"`
}

type videoList struct {
	Videos []videoInfo `json:"videos"`
	Total  int         `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

type videoInfo struct {
	ID             flexString   `json:"id"`
	VideoID        string       `json:"video_id"`
	Title          string       `json:"title"`
	URL            string       `json:"url"`
	Status         string       `json:"status"`
	GeneratedTitle string       `json:"generated_title"`
	BiliBVID       string       `json:"bili_bvid"`
	CreatedAt      Timestamp    `json:"created_at"`
	UpdatedAt      Timestamp    `json:"updated_at"`
	TaskSteps      []stepInfo   `json:"task_steps"`
	Progress       progressInfo `json:"progress"`
	CoverImage     string       `json:"cover_image"`
}

func (v videoInfo) instance() models.TaskInstance {
	id := string(v.ID)
	if id == "" {
		id = v.VideoID
	}
	return models.TaskInstance{
		TaskID:            id,
		ExternalRef:       v.VideoID,
		Title:             v.Title,
		StatusCode:        v.Status,
		CreatedAt:         v.CreatedAt.Time,
		UpdatedAt:         v.UpdatedAt.Time,
		ExternalResultRef: v.BiliBVID,
	}
}

func (v videoInfo) detail() *models.TaskDetail {
	d := &models.TaskDetail{
		TaskInstance:  v.instance(),
		Steps:         make([]models.TaskStep, 0, len(v.TaskSteps)),
		SourceURL:     v.URL,
		GeneratedName: v.GeneratedTitle,
		CoverImage:    v.CoverImage,
		Progress: models.TaskProgress{
			TotalSteps:     v.Progress.TotalSteps,
			CompletedSteps: v.Progress.CompletedSteps,
			FailedSteps:    v.Progress.FailedSteps,
			Percentage:     v.Progress.Percentage,
			CurrentStep:    v.Progress.CurrentStep,
			IsRunning:      v.Progress.IsRunning,
		},
	}
	for _, s := range v.TaskSteps {
		d.Steps = append(d.Steps, s.step())
	}
	return d
}

type stepInfo struct {
	StepName  string    `json:"step_name"`
	StepOrder int       `json:"step_order"`
	Status    string    `json:"status"`
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	Duration  int64     `json:"duration"`
	ErrorMsg  string    `json:"error_msg"`
	CanRetry  bool      `json:"can_retry"`
}

func (s stepInfo) step() models.TaskStep {
	step := models.TaskStep{
		StepName:     s.StepName,
		Order:        s.StepOrder,
		Status:       models.StepStatus(s.Status),
		Duration:     time.Duration(s.Duration) * time.Second,
		ErrorMessage: s.ErrorMsg,
		Retryable:    s.CanRetry,
	}
	if !s.StartTime.IsZero() {
		t := s.StartTime.Time
		step.StartedAt = &t
	}
	if !s.EndTime.IsZero() {
		t := s.EndTime.Time
		step.EndedAt = &t
	}
	return step
}

type progressInfo struct {
	TotalSteps     int     `json:"total_steps"`
	CompletedSteps int     `json:"completed_steps"`
	FailedSteps    int     `json:"failed_steps"`
	Percentage     float64 `json:"progress_percentage"`
	CurrentStep    string  `json:"current_step"`
	IsRunning      bool    `json:"is_running"`
}

type filesInfo struct {
	VideoID   string `json:"video_id"`
	Directory string `json:"directory"`
	Files     []struct {
		Name     string    `json:"name"`
		Size     int64     `json:"size"`
		Type     string    `json:"type"`
		Modified Timestamp `json:"modified"`
	} `json:"files"`
}

func (f filesInfo) files() *models.TaskFiles {
	out := &models.TaskFiles{ExternalRef: f.VideoID, Directory: f.Directory, Files: make([]models.TaskFile, 0, len(f.Files))}
	for _, file := range f.Files {
		out.Files = append(out.Files, models.TaskFile{
			Name:     file.Name,
			Size:     file.Size,
			Type:     file.Type,
			Modified: file.Modified.Time,
		})
	}
	return out
}

func itoa(i int) string { return strconv.Itoa(i) }
