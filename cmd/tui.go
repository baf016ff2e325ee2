package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/tasks"
	"github.com/desertthunder/upsync/internal/ui"
	"github.com/oklog/run"
	"github.com/urfave/cli/v3"
)

// Watch launches the interactive task dashboard.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	orch := r.engines(make(chan tasks.Update, 64))

	model := ui.NewModel(ctx, ui.Options{
		Orchestrator: orch,
		Updates:      r.updates,
		PageSize:     r.config.Sync.PageSize,
		ScanURL:      r.config.Auth.ScanURL,
		OpenBrowser:  shared.OpenURL,
		Logger:       shared.WithLogger(fileLogger, "component", "ui"),
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())

	var g run.Group

	// Dashboard.
	{
		g.Add(
			func() error {
				if _, err := p.Run(); err != nil {
					return fmt.Errorf("error running TUI: %w", err)
				}
				return nil
			},
			func(_ error) {
				p.Quit()
			},
		)
	}

	// Context cancellation (from parent signal handling).
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
