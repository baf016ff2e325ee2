package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// StatusResponse is the --json output of `upsync status`.
type StatusResponse struct {
	LoggedIn bool             `json:"logged_in"`
	Cached   bool             `json:"cached"`
	Identity *models.Identity `json:"identity,omitempty"`
}

// Login runs the QR handshake and blocks until the code is confirmed, expires or ctx is cancelled.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	orch := r.engines(nil)
	if err := orch.Start(ctx); err != nil {
		r.logger.Warn("could not check existing session", "error", err)
	}
	if id := orch.Identity(); id != nil {
		return r.writePlain("✓ Already signed in as %s (%s)\n", id.DisplayName, id.SubjectID)
	}

	showQR := !cmd.Bool("no-qr")
	open := cmd.Bool("open")

	unsubscribe := orch.Session().Subscribe(func(e auth.Event) {
		r.renderAuthEvent(e, showQR, open)
	})
	defer unsubscribe()

	identity, err := orch.Login(ctx)
	switch {
	case errors.Is(err, shared.ErrChallengeExpired):
		return fmt.Errorf("%w: run 'upsync login' again for a new code", err)
	case err != nil:
		return err
	}

	return r.writePlainln("✓ Signed in as %s (%s)", identity.DisplayName, identity.SubjectID)
}

func (r *Runner) renderAuthEvent(e auth.Event, showQR, open bool) {
	switch e.Kind {
	case auth.EventChallengeIssued:
		r.writePlainHeader("Scan with the Bilibili app to sign in")
		if showQR {
			qr, err := ui.RenderQR(r.config.Auth.ScanURL(e.Challenge.ChallengeID))
			if err != nil {
				r.logger.Warn("failed to render QR code", "error", err)
			} else {
				r.writePlain("%s\n", qr)
			}
		}
		r.writePlain("QR image: %s\n", e.Challenge.PresentationPayload)
		r.writePlain("Waiting for confirmation (expires in %s)...\n", r.config.Auth.MaxDuration())

		if open {
			if err := shared.OpenURL(e.Challenge.PresentationPayload); err != nil {
				r.logger.Warn("failed to open browser", "error", err)
			}
		}
	case auth.EventRefreshStatus:
		r.logger.Debug("challenge still pending")
	case auth.EventFailed:
		r.logger.Error("login failed", "error", e.Err)
	}
}

// Logout ends the server session and clears the cached identity and snapshots.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	orch := r.engines(nil)
	if err := orch.Logout(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// Status asks the server who is signed in. When the server cannot be reached the last cached identity
// is reported instead.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.status(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(resp, true)
	}

	switch {
	case !resp.LoggedIn:
		return r.writePlain("✗ Not signed in\n")
	case resp.Cached:
		r.writePlain("⚠ Server unreachable, showing the last known account\n")
	}
	r.writePlain("✓ Signed in as %s\n", resp.Identity.DisplayName)
	return r.writePlain("Subject: %s\n", resp.Identity.SubjectID)
}

func (r *Runner) status(ctx context.Context) (*StatusResponse, error) {
	st, err := r.client.AuthStatus(ctx)
	if err == nil {
		return &StatusResponse{LoggedIn: st.LoggedIn, Identity: st.Identity}, nil
	}

	r.logger.Warn("auth status check failed, reading cache", "error", err)
	if cacheErr := r.cache(); cacheErr != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	identity, cacheErr := r.identities.Get()
	switch {
	case errors.Is(cacheErr, shared.ErrCacheMiss):
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	case cacheErr != nil:
		return nil, cacheErr
	}
	return &StatusResponse{LoggedIn: true, Cached: true, Identity: identity}, nil
}
