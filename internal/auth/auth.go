// Package auth runs the QR login handshake against the pipeline server.
//
// A [Session] moves through Idle, Requesting and AwaitingScan and ends in Succeeded, Expired or Failed.
// While awaiting the scan it polls the server on a fixed interval for a bounded lifetime. Consumers learn
// about outcomes by subscribing to [Event]s.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/poll"
	"github.com/desertthunder/upsync/internal/services"
	"github.com/desertthunder/upsync/internal/shared"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxDuration  = 5 * time.Minute
)

// State is the position of a [Session] in the handshake.
type State int

const (
	Idle State = iota
	Requesting
	AwaitingScan
	Succeeded
	Expired
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case AwaitingScan:
		return "awaiting scan"
	case Succeeded:
		return "succeeded"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the handshake is over.
func (s State) Terminal() bool {
	return s == Succeeded || s == Expired || s == Failed
}

// Remote is the part of the pipeline server the handshake talks to.
type Remote interface {
	IssueChallenge(ctx context.Context) (*models.AuthChallenge, error)
	PollChallenge(ctx context.Context, challengeID string) (services.PollResult, error)
}

// EventKind identifies an [Event].
type EventKind int

const (
	// EventChallengeIssued carries the new challenge.
	EventChallengeIssued EventKind = iota
	// EventRefreshStatus asks consumers to re-read the authoritative auth status.
	EventRefreshStatus
	// EventLoginSucceeded carries the identity from the poll response.
	EventLoginSucceeded
	EventExpired
	// EventFailed carries the challenge issuance error.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventChallengeIssued:
		return "challenge issued"
	case EventRefreshStatus:
		return "refresh status"
	case EventLoginSucceeded:
		return "login succeeded"
	case EventExpired:
		return "expired"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Handlers run on the session's goroutines and must not block.
type Event struct {
	Kind      EventKind
	Challenge *models.AuthChallenge
	Identity  *models.Identity
	Err       error
}

// Options configures a [Session]. Zero durations take the package defaults.
type Options struct {
	Remote       Remote
	PollInterval time.Duration
	MaxDuration  time.Duration
	Clock        poll.Clock
	Logger       *log.Logger
}

// Session is one client's login handshake. It is safe for concurrent use.
type Session struct {
	remote      Remote
	interval    time.Duration
	maxDuration time.Duration
	clock       poll.Clock
	logger      *log.Logger

	mu        sync.Mutex
	state     State
	challenge *models.AuthChallenge
	identity  *models.Identity
	err       error
	gen       uint64
	handle    *poll.Handle
	done      chan struct{}

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an idle session.
func New(opts Options) *Session {
	s := &Session{
		remote:      opts.Remote,
		interval:    opts.PollInterval,
		maxDuration: opts.MaxDuration,
		clock:       opts.Clock,
		logger:      opts.Logger,
		subs:        make(map[int]func(Event)),
		done:        make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.maxDuration <= 0 {
		s.maxDuration = DefaultMaxDuration
	}
	if s.clock == nil {
		s.clock = poll.RealClock{}
	}
	if s.logger == nil {
		s.logger = shared.NewDiscardLogger()
	}
	close(s.done)
	return s
}

// Subscribe registers fn for every future event and returns a function that removes it.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) emit(e Event) {
	s.subMu.Lock()
	handlers := make([]func(Event), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			handlers = append(handlers, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// Start begins a new handshake, cancelling any handshake already in progress.
//
// ctx bounds the challenge request only. The poll loop that follows lives until the challenge resolves,
// expires or is cancelled with [Session.Cancel] or [Session.Regenerate]. A failed challenge request moves
// the session to Failed and is not retried.
func (s *Session) Start(ctx context.Context) error {
	s.cancelLoop()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Requesting
	s.challenge = nil
	s.identity = nil
	s.err = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	challenge, err := s.remote.IssueChallenge(ctx)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return shared.ErrHandshakeCanceled
	}

	if err != nil {
		s.state = Failed
		s.err = err
		close(s.done)
		s.mu.Unlock()

		s.logger.Error("challenge request failed", "error", err)
		s.emit(Event{Kind: EventFailed, Err: err})
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	s.state = AwaitingScan
	s.challenge = challenge

	var resolved *models.Identity
	action := func(ctx context.Context) poll.Outcome {
		res, err := s.remote.PollChallenge(ctx, challenge.ChallengeID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("poll tick failed", "challenge", challenge.ChallengeID, "error", err)
			}
			return poll.Continue
		}

		switch res.Status {
		case services.PollResolved:
			resolved = res.Identity
			return poll.Stop("resolved")
		case services.PollExpired:
			return poll.Stop("expired")
		default:
			return poll.Continue
		}
	}

	h := poll.Start(context.WithoutCancel(ctx), action, s.interval, s.maxDuration, poll.WithClock(s.clock))
	s.handle = h
	s.mu.Unlock()

	s.logger.Info("challenge issued", "challenge", challenge.ChallengeID)
	c := *challenge
	s.emit(Event{Kind: EventChallengeIssued, Challenge: &c})

	go func() {
		<-h.Done()
		s.settle(gen, h, resolved)
	}()
	return nil
}

// settle applies the end of the poll loop of generation gen. resolved is only read after the loop exits.
func (s *Session) settle(gen uint64, h *poll.Handle, resolved *models.Identity) {
	s.mu.Lock()
	if s.gen != gen || s.state != AwaitingScan {
		s.mu.Unlock()
		return
	}
	s.handle = nil

	var events []Event
	switch {
	case h.Reason() == poll.Stopped && h.Detail() == "resolved" && resolved != nil:
		id := *resolved
		s.state = Succeeded
		s.identity = &id
		events = []Event{{Kind: EventRefreshStatus}, {Kind: EventLoginSucceeded, Identity: &id}}
		s.logger.Info("login succeeded", "subject", id.SubjectID, "name", id.DisplayName)
	case h.Reason() == poll.Cancelled:
		s.state = Idle
		s.challenge = nil
	default:
		s.state = Expired
		s.err = shared.ErrChallengeExpired
		events = []Event{{Kind: EventExpired, Err: shared.ErrChallengeExpired}}
		s.logger.Info("challenge expired", "reason", h.Reason().String())
	}
	close(s.done)
	s.mu.Unlock()

	for _, e := range events {
		s.emit(e)
	}
}

// Cancel stops any handshake in progress and returns the session to Idle. Once Cancel returns the old
// poll loop makes no further calls. Terminal states are left untouched.
func (s *Session) Cancel() {
	s.cancelLoop()
}

func (s *Session) cancelLoop() {
	s.mu.Lock()
	s.gen++
	h := s.handle
	s.handle = nil
	if !s.state.Terminal() {
		s.state = Idle
		s.challenge = nil
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	s.mu.Unlock()

	if h != nil {
		h.Cancel()
		<-h.Done()
	}
}

// Regenerate discards the current challenge and starts over. It is safe to call from any state.
func (s *Session) Regenerate(ctx context.Context) error {
	s.cancelLoop()

	s.mu.Lock()
	s.challenge = nil
	s.mu.Unlock()

	return s.Start(ctx)
}

// Reset cancels any handshake and forgets the resolved identity.
func (s *Session) Reset() {
	s.cancelLoop()

	s.mu.Lock()
	s.state = Idle
	s.challenge = nil
	s.identity = nil
	s.err = nil
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Challenge returns a copy of the outstanding challenge, or nil.
func (s *Session) Challenge() *models.AuthChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == nil {
		return nil
	}
	c := *s.challenge
	return &c
}

// Identity returns a copy of the resolved identity, or nil.
func (s *Session) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Err returns why the last handshake failed or expired.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done returns a channel closed when the current handshake leaves Requesting and AwaitingScan.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current handshake ends or ctx is done and returns the resulting state.
// A handshake replaced by [Session.Start] or [Session.Regenerate] while waiting reports
// [shared.ErrHandshakeCanceled].
func (s *Session) Wait(ctx context.Context) (State, error) {
	return s.waitOn(ctx, s.Done())
}

// waitOn waits for the handshake that owns done.
func (s *Session) waitOn(ctx context.Context, done <-chan struct{}) (State, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return s.state, shared.ErrHandshakeCanceled
	}
	switch s.state {
	case Succeeded:
		return s.state, nil
	case Idle, Requesting, AwaitingScan:
		return s.state, shared.ErrHandshakeCanceled
	case Expired:
		return s.state, shared.ErrChallengeExpired
	default:
		return s.state, fmt.Errorf("%w: %v", shared.ErrAuthFailed, s.err)
	}
}
