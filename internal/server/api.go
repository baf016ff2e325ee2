package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/desertthunder/upsync/internal/tasks"
)

// Session is the signed-in state the API reads. Satisfied by orchestrator.Orchestrator.
type Session interface {
	Identity() *models.Identity
	Refresh(ctx context.Context) error
}

// TaskStore is the task state and commands the API exposes. Satisfied by tasks.Registry.
type TaskStore interface {
	Snapshot() []models.TaskInstance
	FetchedAt() time.Time
	LastError() error
	FetchDetail(ctx context.Context, taskID string) (*models.TaskDetail, error)
	ListFiles(ctx context.Context, taskID string) (*models.TaskFiles, error)
	RetryStep(ctx context.Context, taskID, stepName string) error
	TriggerStage(ctx context.Context, taskID string, trigger status.Trigger) error
}

// IdentityResponse is the body of GET /api/identity.
type IdentityResponse struct {
	LoggedIn bool             `json:"logged_in"`
	Identity *models.Identity `json:"identity,omitempty"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	tasks.Page
	Counts    map[status.Category]int `json:"counts"`
	FetchedAt *time.Time              `json:"fetched_at,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
}

// TaskDetailResponse is the body of the single-task endpoints.
type TaskDetailResponse struct {
	Task   *models.TaskDetail    `json:"task"`
	Status status.Classification `json:"status"`
}

// CommandResponse answers an accepted retry or trigger with the re-fetched task. The command was
// sent either way; when the re-fetch fails Task is nil and RefetchError says why.
type CommandResponse struct {
	Accepted     bool                   `json:"accepted"`
	Task         *models.TaskDetail     `json:"task,omitempty"`
	Status       *status.Classification `json:"status,omitempty"`
	RefetchError string                 `json:"refetch_error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// API serves the synced task state.
type API struct {
	session  Session
	store    TaskStore
	pageSize int
	logger   *log.Logger
}

// NewAPI creates the handler set. pageSize <= 0 uses [tasks.DefaultPageSize].
func NewAPI(session Session, store TaskStore, pageSize int, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &API{session: session, store: store, pageSize: pageSize, logger: logger}
}

// Routes registers every endpoint on r.
func (a *API) Routes(r *BasicRouter) {
	r.HandleFunc(http.MethodGet, "/api/health", a.health)
	r.HandleFunc(http.MethodGet, "/api/identity", a.identity)
	r.HandleFunc(http.MethodGet, "/api/tasks", a.authed(a.listTasks))
	r.HandleFunc(http.MethodGet, "/api/tasks/{id}", a.authed(a.getTask))
	r.HandleFunc(http.MethodGet, "/api/tasks/{id}/files", a.authed(a.listFiles))
	r.HandleFunc(http.MethodPost, "/api/tasks/{id}/steps/{step}/retry", a.authed(a.retryStep))
	r.HandleFunc(http.MethodPost, "/api/tasks/{id}/trigger/{stage}", a.authed(a.triggerStage))
	r.HandleFunc(http.MethodPost, "/api/refresh", a.authed(a.refresh))
}

// NewHandler builds the complete middleware-wrapped handler for the API. An empty origin allows any.
func NewHandler(api *API, origin string, logger *log.Logger) http.Handler {
	r := NewBasicRouter()
	r.Use(RequestID(), Logging(logger), Recover(logger))
	api.Routes(r)
	return CORS(origin)(r)
}

func (a *API) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.session.Identity() == nil {
			writeError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated.Error())
			return
		}
		next(w, r)
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) identity(w http.ResponseWriter, r *http.Request) {
	id := a.session.Identity()
	writeJSON(w, http.StatusOK, IdentityResponse{LoggedIn: id != nil, Identity: id})
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	category, ok := status.ParseCategory(q.Get("category"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(q.Get("category")))
		return
	}

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be a number")
			return
		}
		page = n
	}

	snapshot := a.store.Snapshot()
	pager := tasks.NewPager(a.pageSize)
	pager.SetFilter(category)
	if !pager.SetPage(page, len(tasks.Filter(snapshot, category))) {
		writeError(w, http.StatusNotFound, "page out of range")
		return
	}

	resp := TaskListResponse{Page: pager.View(snapshot), Counts: tasks.Counts(snapshot)}
	if at := a.store.FetchedAt(); !at.IsZero() {
		resp.FetchedAt = &at
	}
	if err := a.store.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	a.writeDetail(w, r, http.StatusOK)
}

func (a *API) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := a.store.ListFiles(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// retryStep sends the retry and answers with the re-fetched task so callers see the server's view.
func (a *API) retryStep(w http.ResponseWriter, r *http.Request) {
	if err := a.store.RetryStep(r.Context(), r.PathValue("id"), r.PathValue("step")); err != nil {
		a.fail(w, err)
		return
	}
	a.writeAccepted(w, r)
}

func (a *API) triggerStage(w http.ResponseWriter, r *http.Request) {
	trigger := status.Trigger(r.PathValue("stage"))
	if err := a.store.TriggerStage(r.Context(), r.PathValue("id"), trigger); err != nil {
		a.fail(w, err)
		return
	}
	a.writeAccepted(w, r)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	if err := a.session.Refresh(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	snapshot := a.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"total": len(snapshot), "counts": tasks.Counts(snapshot)})
}

func (a *API) writeDetail(w http.ResponseWriter, r *http.Request, code int) {
	d, err := a.store.FetchDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, code, TaskDetailResponse{Task: d, Status: status.Classify(d.StatusCode)})
}

// writeAccepted answers 202 after a command went through. A failed re-fetch must not read as a
// failed command, or clients would send it again.
func (a *API) writeAccepted(w http.ResponseWriter, r *http.Request) {
	resp := CommandResponse{Accepted: true}
	d, err := a.store.FetchDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		a.logger.Warn("re-fetch after command failed", "task", r.PathValue("id"), "error", err)
		resp.RefetchError = err.Error()
	} else {
		c := status.Classify(d.StatusCode)
		resp.Task, resp.Status = d, &c
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// fail maps err onto a status code and writes it.
func (a *API) fail(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, shared.ErrTaskNotFound):
		code = http.StatusNotFound
	case errors.Is(err, shared.ErrNotAuthenticated):
		code = http.StatusUnauthorized
	case errors.Is(err, shared.ErrRemoteRejected):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrStaleResult):
		code = http.StatusConflict
	}
	if code >= http.StatusInternalServerError {
		a.logger.Warn("request failed", "error", err)
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
