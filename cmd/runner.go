package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/orchestrator"
	"github.com/desertthunder/upsync/internal/poll"
	"github.com/desertthunder/upsync/internal/repositories"
	"github.com/desertthunder/upsync/internal/services"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The pipeline client is built eagerly. The cache and the engines are built on first use so commands
// that never touch them (setup, cache clear) do not open network sessions.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	clock      poll.Clock

	client *services.PipelineClient

	db         *sql.DB
	identities *repositories.IdentityRepository
	snapshots  *repositories.SnapshotRepository

	updates  chan tasks.Update
	session  *auth.Session
	registry *tasks.Registry
	orch     *orchestrator.Orchestrator
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Clock      poll.Clock
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Server.Timeout()}
	}
	if opts.Clock == nil {
		opts.Clock = poll.RealClock{}
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		clock:      opts.Clock,
	}
	r.client = r.newClient()
	return r
}

func (r *Runner) newClient() *services.PipelineClient {
	api := services.NewAPIService(
		r.config.Server.APIBase(),
		r.httpClient,
		services.WithRateLimit(r.config.Server.RateLimit),
		services.WithAPILogger(shared.WithLogger(r.logger, "component", "api")),
	)
	return services.NewPipelineClient(api, r.config.Server.PageLimit)
}

// Load replaces the configuration with the file at path. A missing file keeps the defaults.
func (r *Runner) Load(path string) error {
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	r.config = config
	r.configPath = path
	r.httpClient.Timeout = config.Server.Timeout()
	r.client = r.newClient()
	return nil
}

// SetLogger swaps the logger used by the runner and by engines built afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
	r.client = r.newClient()
}

// cache opens the local cache once. Failures are returned to the caller, which decides whether the
// command can run without it.
func (r *Runner) cache() error {
	if r.db != nil {
		return nil
	}

	db, err := shared.OpenCache(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	r.db = db
	r.identities = repositories.NewIdentityRepository(db)
	r.snapshots = repositories.NewSnapshotRepository(db, repositories.DefaultSnapshotRetention)
	return nil
}

// engines wires the auth session, the task registry and the orchestrator. The cache is optional: when
// it cannot be opened the engines run without persistence.
func (r *Runner) engines(updates chan tasks.Update) *orchestrator.Orchestrator {
	if r.orch != nil {
		return r.orch
	}

	var (
		snapshotCache tasks.SnapshotCacher
		identityCache orchestrator.IdentityCache
		snapshotClear orchestrator.SnapshotCleaner
	)
	if err := r.cache(); err != nil {
		r.logger.Warn("running without local cache", "error", err)
	} else {
		snapshotCache = r.snapshots
		identityCache = r.identities
		snapshotClear = r.snapshots
	}

	r.updates = updates
	r.session = auth.New(auth.Options{
		Remote:       r.client,
		PollInterval: r.config.Auth.PollInterval(),
		MaxDuration:  r.config.Auth.MaxDuration(),
		Clock:        r.clock,
		Logger:       shared.WithLogger(r.logger, "component", "auth"),
	})
	r.registry = tasks.NewRegistry(tasks.Options{
		Remote:   r.client,
		Interval: r.config.Sync.RefreshInterval(),
		Clock:    r.clock,
		Logger:   shared.WithLogger(r.logger, "component", "tasks"),
		Cache:    snapshotCache,
		Updates:  updates,
	})
	r.orch = orchestrator.New(orchestrator.Options{
		Remote:     r.client,
		Session:    r.session,
		Registry:   r.registry,
		Identities: identityCache,
		Snapshots:  snapshotClear,
		Logger:     shared.WithLogger(r.logger, "component", "orchestrator"),
	})
	return r.orch
}

// signedIn starts the orchestrator and fails with [shared.ErrNotAuthenticated] when the server holds
// no session.
func (r *Runner) signedIn(ctx context.Context) (*orchestrator.Orchestrator, error) {
	orch := r.engines(nil)
	if err := orch.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if !orch.LoggedIn() {
		return nil, fmt.Errorf("%w: run 'upsync login' first", shared.ErrNotAuthenticated)
	}
	return orch, nil
}

// Close stops the engines and closes the cache.
func (r *Runner) Close() error {
	if r.orch != nil {
		r.orch.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, loginCommand, logoutCommand, statusCommand, tasksCommand, cacheCommand, watchCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
