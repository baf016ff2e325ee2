package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/upsync/internal/formatter"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/desertthunder/upsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// TasksList prints one page of tasks, fetched live or read from the cached snapshot.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	category, ok := status.ParseCategory(cmd.String("category"))
	if !ok {
		return fmt.Errorf("%w: unknown category %q", shared.ErrInvalidFlag, cmd.String("category"))
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var (
		snapshot  []models.TaskInstance
		fetchedAt time.Time
	)
	if cmd.Bool("cached") {
		cached, err := r.cachedSnapshot()
		if err != nil {
			return err
		}
		snapshot, fetchedAt = cached.Tasks, cached.FetchedAt
	} else {
		orch, err := r.signedIn(ctx)
		if err != nil {
			return err
		}
		registry := orch.Registry()
		if !registry.Loaded() {
			return fmt.Errorf("failed to load tasks: %w", registry.LastError())
		}
		snapshot, fetchedAt = registry.Snapshot(), registry.FetchedAt()
	}

	pager := tasks.NewPager(r.config.Sync.PageSize)
	pager.SetFilter(category)
	n := len(tasks.Filter(snapshot, category))
	if page := int(cmd.Int("page")); !pager.SetPage(page, n) {
		return fmt.Errorf("%w: page %d out of range (1-%d)", shared.ErrInvalidFlag, page, pager.Pages(n))
	}

	data, err := formatter.RenderPage(format, pager.View(snapshot), tasks.Counts(snapshot))
	if err != nil {
		return err
	}
	if err := formatter.WriteExport(cmd.String("output"), data); err != nil {
		return err
	}

	if format == formatter.FormatTable && cmd.String("output") == "" {
		r.writePlain("\nFetched %s", formatter.FormatTime(fetchedAt))
		if cmd.Bool("cached") {
			r.writePlain(" (cached)")
		}
		r.writePlain("\n")
	}
	return nil
}

func (r *Runner) cachedSnapshot() (*models.TaskSnapshot, error) {
	if err := r.cache(); err != nil {
		return nil, err
	}
	snapshot, err := r.snapshots.Latest()
	if errors.Is(err, shared.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: no cached tasks, run 'upsync tasks list' while online first", err)
	}
	return snapshot, err
}

// TasksShow prints the detail of one task.
func (r *Runner) TasksShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	detail, err := r.engines(nil).Registry().FetchDetail(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(detail, true)
	}
	_, err = r.output.Write(formatter.DetailToText(detail))
	return err
}

// TasksRetry asks the server to re-run one step.
func (r *Runner) TasksRetry(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	step, err := requireArg(cmd, "step")
	if err != nil {
		return err
	}

	if err := r.engines(nil).Registry().RetryStep(ctx, id, step); err != nil {
		return err
	}
	return r.writePlain("✓ Retry requested for %s of task %s\n", status.StepLabel(step), id)
}

// TasksTrigger starts the video or subtitle upload of a task.
func (r *Runner) TasksTrigger(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	stage, err := requireArg(cmd, "stage")
	if err != nil {
		return err
	}

	trigger, ok := status.ParseTrigger(stage)
	if !ok {
		return fmt.Errorf("%w: stage must be video or subtitle, got %q", shared.ErrInvalidArgument, stage)
	}

	if err := r.engines(nil).Registry().TriggerStage(ctx, id, trigger); err != nil {
		return err
	}
	return r.writePlain("✓ Started %s upload for task %s\n", trigger, id)
}

// TasksFiles lists the artifacts of a task.
func (r *Runner) TasksFiles(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	files, err := r.engines(nil).Registry().ListFiles(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(files, true)
	}
	_, err = r.output.Write(formatter.FilesToText(files))
	return err
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}
