// package orchestrator ties the login handshake to the task refresh cadence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/services"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/tasks"
)

// Remote is the session-level part of the pipeline server.
type Remote interface {
	AuthStatus(ctx context.Context) (*services.AuthStatus, error)
	Logout(ctx context.Context) error
}

// IdentityCache persists the signed-in identity. Satisfied by repositories.IdentityRepository.
type IdentityCache interface {
	Save(identity *models.Identity) error
	Clear() error
}

// SnapshotCleaner drops cached task lists on logout. Satisfied by repositories.SnapshotRepository.
type SnapshotCleaner interface {
	Clear() error
}

// Options configures an [Orchestrator]. Session and Registry are required.
type Options struct {
	Remote     Remote
	Session    *auth.Session
	Registry   *tasks.Registry
	Identities IdentityCache
	Snapshots  SnapshotCleaner
	Logger     *log.Logger
}

// Orchestrator owns the signed-in lifecycle: it starts the registry cadence once an identity is known and
// tears all task state down on logout.
type Orchestrator struct {
	remote     Remote
	session    *auth.Session
	registry   *tasks.Registry
	identities IdentityCache
	snapshots  SnapshotCleaner
	logger     *log.Logger

	mu       sync.Mutex
	identity *models.Identity
	gen      uint64
	base     context.Context

	bg sync.WaitGroup
}

// New creates a signed-out orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		remote:     opts.Remote,
		session:    opts.Session,
		registry:   opts.Registry,
		identities: opts.Identities,
		snapshots:  opts.Snapshots,
		logger:     opts.Logger,
		base:       context.Background(),
	}
	if o.logger == nil {
		o.logger = shared.NewDiscardLogger()
	}
	return o
}

// Session returns the login handshake driven by [Orchestrator.Login].
func (o *Orchestrator) Session() *auth.Session { return o.session }

// Registry returns the task registry.
func (o *Orchestrator) Registry() *tasks.Registry { return o.registry }

// Start binds the refresh cadence to ctx and asks the server whether a session already exists.
// A live server session starts the cadence without a handshake.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.base = ctx
	gen := o.gen
	o.mu.Unlock()

	if o.remote == nil {
		return nil
	}

	st, err := o.remote.AuthStatus(ctx)
	if err != nil {
		o.logger.Warn("auth status check failed", "error", err)
		return fmt.Errorf("check auth status: %w", err)
	}
	if !st.LoggedIn || st.Identity == nil {
		o.logger.Info("not signed in")
		return nil
	}

	return o.activate(ctx, gen, st.Identity)
}

// Login runs the QR handshake and blocks until it ends. Subscribe to [Orchestrator.Session] to see the
// challenge while Login waits.
//
// On success the identity is re-read from the server, the cadence starts and one refresh runs
// immediately. Cancelling ctx cancels the handshake.
func (o *Orchestrator) Login(ctx context.Context) (*models.Identity, error) {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	if err := o.session.Start(ctx); err != nil {
		return nil, err
	}

	state, err := o.session.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			o.session.Cancel()
		}
		return nil, err
	}
	if state != auth.Succeeded {
		return nil, fmt.Errorf("%w: handshake ended in %s", shared.ErrAuthFailed, state)
	}

	identity := o.session.Identity()
	if o.remote != nil {
		if st, err := o.remote.AuthStatus(ctx); err != nil {
			o.logger.Warn("auth status after login failed, using poll identity", "error", err)
		} else if st.LoggedIn && st.Identity != nil {
			identity = st.Identity
		}
	}

	if err := o.activate(ctx, gen, identity); err != nil {
		return nil, err
	}
	return o.Identity(), nil
}

// activate records identity and starts the cadence unless a logout happened since gen was read.
func (o *Orchestrator) activate(ctx context.Context, gen uint64, identity *models.Identity) error {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return shared.ErrHandshakeCanceled
	}
	id := *identity
	o.identity = &id
	o.registry.Start(o.base)
	o.mu.Unlock()

	o.logger.Info("signed in", "subject", id.SubjectID, "name", id.DisplayName)

	if o.identities != nil {
		if err := o.identities.Save(&id); err != nil {
			o.logger.Warn("failed to cache identity", "error", err)
		}
	}

	if err := o.registry.Refresh(ctx); err != nil && !errors.Is(err, shared.ErrStaleResult) {
		o.logger.Warn("initial refresh failed", "error", err)
	}

	o.mu.Lock()
	loggedOut := o.gen != gen
	o.mu.Unlock()
	if loggedOut {
		o.registry.Clear()
		return shared.ErrHandshakeCanceled
	}
	return nil
}

// Logout stops the cadence and clears every piece of task and identity state before it returns.
// The server session is closed in the background and its outcome only logged.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.mu.Lock()
	o.gen++
	o.identity = nil
	o.mu.Unlock()

	if o.remote != nil {
		o.bg.Add(1)
		go func() {
			defer o.bg.Done()
			if err := o.remote.Logout(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("remote logout failed", "error", err)
			}
		}()
	}

	o.registry.Stop()
	o.registry.Clear()
	o.session.Reset()

	var errs []error
	if o.identities != nil {
		if err := o.identities.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear identity cache: %w", err))
		}
	}
	if o.snapshots != nil {
		if err := o.snapshots.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear snapshot cache: %w", err))
		}
	}

	o.logger.Info("signed out")
	return errors.Join(errs...)
}

// Refresh runs one task refresh now. It fails with [shared.ErrNotAuthenticated] while signed out.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if !o.LoggedIn() {
		return shared.ErrNotAuthenticated
	}
	return o.registry.Refresh(ctx)
}

// Identity returns a copy of the signed-in identity, or nil.
func (o *Orchestrator) Identity() *models.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.identity == nil {
		return nil
	}
	id := *o.identity
	return &id
}

// LoggedIn reports whether an identity is held.
func (o *Orchestrator) LoggedIn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identity != nil
}

// Close stops the cadence and any handshake and waits for background logout calls.
func (o *Orchestrator) Close() {
	o.registry.Stop()
	o.session.Cancel()
	o.bg.Wait()
}
