package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/upsync/internal/formatter"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// CacheInfo prints what the local cache holds.
func (r *Runner) CacheInfo(ctx context.Context, cmd *cli.Command) error {
	if err := r.cache(); err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Cache: %s", r.config.Database.Path))

	identity, err := r.identities.Get()
	switch {
	case errors.Is(err, shared.ErrCacheMiss):
		r.writePlain("Identity:  -\n")
	case err != nil:
		return err
	default:
		r.writePlain("Identity:  %s (%s)\n", identity.DisplayName, identity.SubjectID)
	}

	count, err := r.snapshots.Count()
	if err != nil {
		return err
	}
	r.writePlain("Snapshots: %d\n", count)

	latest, err := r.snapshots.Latest()
	switch {
	case errors.Is(err, shared.ErrCacheMiss):
		return nil
	case err != nil:
		return err
	}
	return r.writePlain("Latest:    %d tasks, fetched %s\n", len(latest.Tasks), formatter.FormatTime(latest.FetchedAt))
}

// CacheClear drops the cached identity and snapshots without touching the server session.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.cache(); err != nil {
		return err
	}

	if err := errors.Join(r.identities.Clear(), r.snapshots.Clear()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	r.logger.Info("cache cleared", "path", r.config.Database.Path)
	return r.writePlain("✓ Cache cleared\n")
}
