package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/upsync/internal/server"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/tasks"
	"github.com/oklog/run"
	"github.com/urfave/cli/v3"
)

// Serve runs the local read API next to the refresh cadence until ctx is cancelled.
//
// A signed-out server is not an error: the API answers 401 on task routes until `upsync login` has
// been run, and a restart picks the new session up.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	apiConfig := r.config.API
	if port := int(cmd.Int("port")); port > 0 {
		apiConfig.Port = port
	}

	orch := r.engines(make(chan tasks.Update, 64))
	if err := orch.Start(ctx); err != nil {
		r.logger.Warn("could not check session, serving signed out", "error", err)
	} else if !orch.LoggedIn() {
		r.logger.Warn("not signed in, task routes answer 401 until 'upsync login' is run")
	}

	api := server.NewAPI(orch, orch.Registry(), r.config.Sync.PageSize, r.logger)
	handler := server.NewHandler(api, cmd.String("cors-origin"), shared.WithLogger(r.logger, "component", "http"))
	srv := server.New(apiConfig.Addr(), handler, r.logger)

	var g run.Group

	// HTTP API.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				return srv.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Registry updates.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				r.logUpdates(ctx, r.updates)
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	r.logger.Info("serving task state", "addr", srv.Addr(), "refresh", r.config.Sync.RefreshInterval())
	if err := g.Run(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// logUpdates drains updates into the log until ctx is done.
func (r *Runner) logUpdates(ctx context.Context, updates <-chan tasks.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if u.Failed() {
				r.logger.Warn(u.Message, "phase", u.Phase, "error", u.Err)
			} else {
				r.logger.Debug(u.Message, "phase", u.Phase)
			}
		}
	}
}
