package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
)

// DefaultPageLimit is the largest page the server hands out.
const DefaultPageLimit = 100

// RemoteError is a request the server answered with a non-success code.
type RemoteError struct {
	Code       int
	HTTPStatus int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (code %d)", shared.ErrRemoteRejected, e.Code)
	}
	return fmt.Sprintf("%v (code %d): %s", shared.ErrRemoteRejected, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return shared.ErrRemoteRejected
}

// PollStatus is the state of a challenge as reported by one poll call.
type PollStatus int

const (
	PollPending PollStatus = iota
	PollResolved
	PollExpired
)

// PollResult is the outcome of one poll call. Identity is set only when Status is [PollResolved].
type PollResult struct {
	Status   PollStatus
	Identity *models.Identity
}

// AuthStatus is the server's authoritative view of the login session.
type AuthStatus struct {
	LoggedIn bool
	Identity *models.Identity
}

// TaskPage is one page of the task list.
type TaskPage struct {
	Tasks []models.TaskInstance
	Total int
	Page  int
	Limit int
}

// PipelineClient is the typed client of the pipeline server's auth and video endpoints.
type PipelineClient struct {
	api       *APIService
	pageLimit int
}

// NewPipelineClient wraps api. pageLimit is clamped to [1, DefaultPageLimit].
func NewPipelineClient(api *APIService, pageLimit int) *PipelineClient {
	if pageLimit <= 0 || pageLimit > DefaultPageLimit {
		pageLimit = DefaultPageLimit
	}
	return &PipelineClient{api: api, pageLimit: pageLimit}
}

// IssueChallenge requests a new QR login challenge.
func (p *PipelineClient) IssueChallenge(ctx context.Context) (*models.AuthChallenge, error) {
	var out qrCodeResponse
	if err := p.call(ctx, http.MethodGet, "/auth/qrcode", nil, &out); err != nil {
		return nil, err
	}
	if out.AuthCode == "" {
		return nil, fmt.Errorf("%w: challenge has no auth code", shared.ErrMalformedResponse)
	}

	return &models.AuthChallenge{
		ChallengeID:         out.AuthCode,
		PresentationPayload: p.resolve(out.QRCodeURL),
		IssuedAt:            time.Now(),
	}, nil
}

// PollChallenge asks whether the challenge has been scanned and confirmed.
//
// HTTP 400 and 500 mean the challenge is invalid or expired. Any other answer without login info is pending.
func (p *PipelineClient) PollChallenge(ctx context.Context, challengeID string) (PollResult, error) {
	payload, err := json.Marshal(pollRequest{AuthCode: challengeID})
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	resp, err := p.api.Post(ctx, "/auth/poll", payload)
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusInternalServerError {
		return PollResult{Status: PollExpired}, nil
	}

	var out pollResponse
	if err := resp.Decode(&out); err != nil {
		return PollResult{}, err
	}

	if out.Code == 0 && out.LoginInfo != nil {
		id := out.identity()
		return PollResult{Status: PollResolved, Identity: &id}, nil
	}
	return PollResult{Status: PollPending}, nil
}

// AuthStatus reads the server's login state.
func (p *PipelineClient) AuthStatus(ctx context.Context) (*AuthStatus, error) {
	var out statusResponse
	if err := p.call(ctx, http.MethodGet, "/auth/status", nil, &out); err != nil {
		return nil, err
	}

	st := &AuthStatus{LoggedIn: out.IsLoggedIn}
	if out.IsLoggedIn && out.User != nil {
		subject := string(out.User.Mid)
		if subject == "" {
			subject = string(out.User.ID)
		}
		name := out.User.Name
		if name == "" {
			name = FallbackDisplayName
		}
		st.Identity = &models.Identity{SubjectID: subject, DisplayName: name, AvatarURL: out.User.Avatar}
	}
	return st, nil
}

// Logout clears the server session.
func (p *PipelineClient) Logout(ctx context.Context) error {
	var out envelope
	return p.call(ctx, http.MethodPost, "/auth/logout", nil, &out)
}

// ListTasks fetches one page of tasks. page is 1-indexed.
func (p *PipelineClient) ListTasks(ctx context.Context, page, limit int) (*TaskPage, error) {
	path := "/videos?" + url.Values{"page": {itoa(page)}, "limit": {itoa(limit)}}.Encode()

	var out dataEnvelope[videoList]
	if err := p.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	tp := &TaskPage{
		Tasks: make([]models.TaskInstance, 0, len(out.Data.Videos)),
		Total: out.Data.Total,
		Page:  out.Data.Page,
		Limit: out.Data.Limit,
	}
	for _, v := range out.Data.Videos {
		tp.Tasks = append(tp.Tasks, v.instance())
	}
	return tp, nil
}

// ListAllTasks walks the task list page by page until the reported total is reached.
//
// Tasks that move between pages while walking are kept once, at their first position. The walk also
// ends on a page that adds no new task, or after ceil(total/limit) pages, so a server that ignores
// the page parameter cannot keep it going.
func (p *PipelineClient) ListAllTasks(ctx context.Context) ([]models.TaskInstance, error) {
	var (
		all  []models.TaskInstance
		seen = make(map[string]struct{})
	)

	for page := 1; ; page++ {
		tp, err := p.ListTasks(ctx, page, p.pageLimit)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, t := range tp.Tasks {
			if _, dup := seen[t.TaskID]; dup {
				continue
			}
			seen[t.TaskID] = struct{}{}
			all = append(all, t)
			added++
		}

		if added == 0 || len(all) >= tp.Total || page >= lastPage(tp.Total, tp.Limit, p.pageLimit) {
			if len(all) < tp.Total {
				p.api.logger.Warn("task list walk ended short of total", "pages", page, "tasks", len(all), "total", tp.Total)
			}
			break
		}
	}

	if all == nil {
		all = []models.TaskInstance{}
	}
	return all, nil
}

// lastPage is the number of pages needed for total items, using the page size the server reported
// and falling back to the requested one.
func lastPage(total, reported, requested int) int {
	limit := reported
	if limit <= 0 {
		limit = requested
	}
	return (total + limit - 1) / limit
}

// GetTask fetches the detail of one task including its steps and progress.
func (p *PipelineClient) GetTask(ctx context.Context, taskID string) (*models.TaskDetail, error) {
	var out dataEnvelope[videoInfo]
	if err := p.call(ctx, http.MethodGet, "/videos/"+url.PathEscape(taskID), nil, &out); err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && (remote.Code == http.StatusNotFound || remote.HTTPStatus == http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	return out.Data.detail(), nil
}

// ListFiles fetches the artifact listing of one task.
func (p *PipelineClient) ListFiles(ctx context.Context, taskID string) (*models.TaskFiles, error) {
	var out dataEnvelope[filesInfo]
	if err := p.call(ctx, http.MethodGet, "/videos/"+url.PathEscape(taskID)+"/files", nil, &out); err != nil {
		return nil, err
	}
	return out.Data.files(), nil
}

// RetryStep asks the server to run one step of a task again.
func (p *PipelineClient) RetryStep(ctx context.Context, taskID, stepName string) error {
	var out envelope
	path := "/videos/" + url.PathEscape(taskID) + "/steps/" + url.PathEscape(stepName) + "/retry"
	return p.call(ctx, http.MethodPost, path, nil, &out)
}

// TriggerStage starts the video or subtitle upload of a task by hand.
func (p *PipelineClient) TriggerStage(ctx context.Context, taskID string, trigger status.Trigger) error {
	if _, ok := status.ParseTrigger(string(trigger)); !ok {
		return fmt.Errorf("%w: unknown trigger %q", shared.ErrInvalidArgument, trigger)
	}

	var out envelope
	path := "/videos/" + url.PathEscape(taskID) + "/upload/" + string(trigger)
	return p.call(ctx, http.MethodPost, path, nil, &out)
}

// call performs a request and decodes a success envelope into out, which must embed [envelope].
func (p *PipelineClient) call(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		body = b
	}

	var (
		resp *APIResponse
		err  error
	)
	if method == http.MethodGet {
		resp, err = p.api.Get(ctx, path)
	} else {
		resp, err = p.api.Post(ctx, path, body)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	if !resp.IsJSON {
		if resp.StatusCode >= http.StatusBadRequest {
			return &RemoteError{Code: resp.StatusCode, HTTPStatus: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%w: %s %s returned a non-JSON body", shared.ErrMalformedResponse, method, path)
	}

	var env envelope
	if err := resp.Decode(&env); err != nil {
		return err
	}
	if !env.ok() || resp.StatusCode >= http.StatusBadRequest {
		code := env.Code
		if env.ok() {
			code = resp.StatusCode
		}
		return &RemoteError{Code: code, HTTPStatus: resp.StatusCode, Message: env.Message}
	}

	return resp.Decode(out)
}

// resolve turns the server's root-relative QR image path into an absolute URL.
func (p *PipelineClient) resolve(ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(p.api.BaseURL())
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
