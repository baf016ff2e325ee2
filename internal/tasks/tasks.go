// package tasks keeps a local read replica of the server's task pipeline.
//
// The core abstraction is Registry, which refreshes the full task set on a cadence, fetches task detail on
// demand and forwards step retries and stage triggers to the server. Operations emit updates via a channel
// for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/poll"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
)

// DefaultInterval is the refresh cadence.
const DefaultInterval = 30 * time.Second

// Remote defines the server operations the registry relies on.
// This abstraction allows for easier testing and decoupling from the concrete HTTP client.
type Remote interface {
	ListAllTasks(ctx context.Context) ([]models.TaskInstance, error)
	GetTask(ctx context.Context, taskID string) (*models.TaskDetail, error)
	ListFiles(ctx context.Context, taskID string) (*models.TaskFiles, error)
	RetryStep(ctx context.Context, taskID, stepName string) error
	TriggerStage(ctx context.Context, taskID string, trigger status.Trigger) error
}

// SnapshotCacher is an optional interface for persisting every successful refresh.
//
// Snapshots are cached silently (errors logged) so a failing cache never fails a refresh.
type SnapshotCacher interface {
	SaveSnapshot(snapshot *models.TaskSnapshot) error
}

// Options configures a [Registry].
type Options struct {
	Remote   Remote
	Interval time.Duration
	Clock    poll.Clock
	Logger   *log.Logger
	Cache    SnapshotCacher
	Updates  chan<- Update
}

// Registry owns the task collection. Consumers only ever see copies.
type Registry struct {
	remote   Remote
	interval time.Duration
	clock    poll.Clock
	logger   *log.Logger
	cache    SnapshotCacher
	updates  chan<- Update

	mu        sync.RWMutex
	tasks     []models.TaskInstance
	fetchedAt time.Time
	lastErr   error
	loaded    bool
	gen       uint64 // bumped by Clear
	started   uint64 // sequence of the newest refresh started
	applied   uint64 // sequence of the newest refresh applied

	loopMu sync.Mutex
	handle *poll.Handle
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		remote:   opts.Remote,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		cache:    opts.Cache,
		updates:  opts.Updates,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.clock == nil {
		r.clock = poll.RealClock{}
	}
	if r.logger == nil {
		r.logger = shared.NewDiscardLogger()
	}
	return r
}

func (r *Registry) send(u Update) {
	if r.updates == nil {
		return
	}
	select {
	case r.updates <- u:
	default:
	}
}

// Refresh fetches the full task list and replaces the local collection in one step.
//
// On failure the previous collection is kept, the error is recorded for [Registry.LastError] and returned.
// A refresh that completes after [Registry.Clear] or after a newer refresh is discarded.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	gen := r.gen
	r.started++
	seq := r.started
	r.mu.Unlock()

	r.send(refreshStartedUpdate())
	tasks, err := r.remote.ListAllTasks(ctx)

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		r.logger.Debug("discarding refresh started before clear")
		return shared.ErrStaleResult
	}

	if err != nil && ctx.Err() != nil {
		r.mu.Unlock()
		return err
	}

	if err != nil {
		r.lastErr = err
		kept := len(r.tasks)
		r.mu.Unlock()

		r.logger.Warn("refresh failed", "kept", kept, "error", err)
		r.send(refreshFailedUpdate(kept, err))
		return fmt.Errorf("refresh tasks: %w", err)
	}

	if seq < r.applied {
		r.mu.Unlock()
		r.logger.Debug("discarding refresh overtaken by a newer one", "seq", seq)
		return nil
	}

	replica := make([]models.TaskInstance, 0, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			r.logger.Warn("skipping task", "error", err)
			continue
		}
		replica = append(replica, t)
	}

	r.tasks = replica
	r.fetchedAt = r.clock.Now()
	r.lastErr = nil
	r.loaded = true
	r.applied = seq
	fetchedAt := r.fetchedAt
	r.mu.Unlock()

	r.logger.Debug("refresh completed", "tasks", len(replica))
	r.cacheSnapshot(replica, fetchedAt)
	r.send(refreshCompletedUpdate(len(replica)))
	return nil
}

func (r *Registry) cacheSnapshot(tasks []models.TaskInstance, fetchedAt time.Time) {
	if r.cache == nil {
		return
	}
	snapshot := &models.TaskSnapshot{FetchedAt: fetchedAt, Tasks: tasks}
	if err := r.cache.SaveSnapshot(snapshot); err != nil {
		r.logger.Warn("failed to cache snapshot", "error", err)
	}
}

// Start runs [Registry.Refresh] every interval until [Registry.Stop] is called or ctx is done.
// Starting a running registry is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.handle != nil {
		select {
		case <-r.handle.Done():
		default:
			return
		}
	}

	r.handle = poll.Start(ctx, func(ctx context.Context) poll.Outcome {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Debug("scheduled refresh failed", "error", err)
		}
		return poll.Continue
	}, r.interval, 0, poll.WithClock(r.clock))
	r.logger.Info("refresh cadence started", "interval", r.interval)
}

// Stop cancels the cadence and waits for an in-flight scheduled refresh to return.
// No scheduled refresh runs after Stop returns.
func (r *Registry) Stop() {
	r.loopMu.Lock()
	h := r.handle
	r.handle = nil
	r.loopMu.Unlock()

	if h == nil {
		return
	}
	h.Cancel()
	<-h.Done()
	r.logger.Info("refresh cadence stopped")
}

// Running reports whether the cadence is active.
func (r *Registry) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.handle == nil {
		return false
	}
	select {
	case <-r.handle.Done():
		return false
	default:
		return true
	}
}

// Clear drops every task and the last error. Refreshes in flight are discarded when they complete.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.gen++
	r.tasks = nil
	r.fetchedAt = time.Time{}
	r.lastErr = nil
	r.loaded = false
	r.mu.Unlock()

	r.send(clearedUpdate())
}

// Snapshot returns a copy of the current collection.
func (r *Registry) Snapshot() []models.TaskInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.TaskInstance, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Task looks up one task in the current collection.
func (r *Registry) Task(id string) (models.TaskInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.TaskID == id {
			return t, true
		}
	}
	return models.TaskInstance{}, false
}

// FetchedAt returns when the current collection was fetched, zero before the first refresh.
func (r *Registry) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// LastError returns the error of the last refresh, nil if it succeeded.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Loaded reports whether a refresh has succeeded since creation or the last [Registry.Clear].
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// FetchDetail loads one task with its steps. The result is not merged into the collection, so the list and
// the detail may disagree until the next refresh.
func (r *Registry) FetchDetail(ctx context.Context, taskID string) (*models.TaskDetail, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	d, err := r.remote.GetTask(ctx, taskID)
	if err != nil {
		r.send(detailFailedUpdate(taskID, err))
		return nil, err
	}
	r.send(detailFetchedUpdate(d))
	return d, nil
}

// ListFiles loads the artifact listing of one task.
func (r *Registry) ListFiles(ctx context.Context, taskID string) (*models.TaskFiles, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	return r.remote.ListFiles(ctx, taskID)
}

// RetryStep asks the server to rerun one step. Local state is left alone; callers re-fetch the detail to
// observe the effect.
func (r *Registry) RetryStep(ctx context.Context, taskID, stepName string) error {
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if stepName == "" {
		return fmt.Errorf("%w: step name", shared.ErrMissingArgument)
	}

	if err := r.remote.RetryStep(ctx, taskID, stepName); err != nil {
		r.logger.Warn("step retry failed", "task", taskID, "step", stepName, "error", err)
		r.send(stepRetryFailedUpdate(taskID, stepName, err))
		return err
	}

	r.logger.Info("step retry requested", "task", taskID, "step", stepName)
	r.send(stepRetriedUpdate(taskID, stepName))
	return nil
}

// TriggerStage starts the video or subtitle upload of a task by hand. The trigger is checked against the
// task's status code first, using the local collection or a detail fetch when the task is not held.
func (r *Registry) TriggerStage(ctx context.Context, taskID string, trigger status.Trigger) error {
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if _, ok := status.ParseTrigger(string(trigger)); !ok {
		return fmt.Errorf("%w: unknown trigger %q", shared.ErrInvalidArgument, trigger)
	}

	code := ""
	if t, ok := r.Task(taskID); ok {
		code = t.StatusCode
	} else {
		d, err := r.remote.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		code = d.StatusCode
	}

	if !status.CanTrigger(code, trigger) {
		err := fmt.Errorf("%w: %s upload not allowed while task is %q", shared.ErrInvalidArgument, trigger, status.Classify(code).Label)
		r.send(stageTriggerFailedUpdate(taskID, trigger, err))
		return err
	}

	if err := r.remote.TriggerStage(ctx, taskID, trigger); err != nil {
		r.logger.Warn("stage trigger failed", "task", taskID, "trigger", trigger, "error", err)
		r.send(stageTriggerFailedUpdate(taskID, trigger, err))
		return err
	}

	r.logger.Info("stage triggered", "task", taskID, "trigger", trigger)
	r.send(stageTriggeredUpdate(taskID, trigger))
	return nil
}
