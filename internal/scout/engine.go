// Package scout keeps a remote basket in sync with a single local file.
// A Watcher marks the shared Target modified on each debounced change;
// the Engine's scheduler loop evaluates the target on every change and
// on a fixed tick, and runs at most one upload attempt at a time,
// followed by a mandatory cooldown.
package scout

//go:generate mockgen -source=engine.go -destination=mock_pusher_test.go -package=scout -mock_names=pusher=MockPusher

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexjbarnes/scout-sync/pantry"
	"github.com/google/uuid"
)

const (
	// DefaultTickInterval is how often the scheduler re-evaluates the
	// target without any change notification.
	DefaultTickInterval = time.Second

	// DefaultCooldown is the refractory delay after every attempt.
	DefaultCooldown = 3 * time.Second

	// watchRetryMin and watchRetryMax bound the delay before a failed
	// watcher is started again.
	watchRetryMin = 100 * time.Millisecond
	watchRetryMax = 2 * time.Second
)

// pusher is the subset of pantry.Client the engine needs. Extracted for
// testability.
type pusher interface {
	Push(ctx context.Context, endpoint string, basket pantry.Basket) (pantry.Outcome, error)
}

// Config holds engine timing and endpoint settings. Zero durations
// select the package defaults.
type Config struct {
	Resolver     *pantry.Resolver
	Debounce     time.Duration
	TickInterval time.Duration
	Cooldown     time.Duration
	PushTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Resolver == nil {
		c.Resolver = pantry.NewResolver("")
	}

	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}

	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}

	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}

	if c.PushTimeout <= 0 {
		c.PushTimeout = pantry.DefaultTimeout
	}
}

// Engine owns the sync target and drives uploads for it.
type Engine struct {
	cfg    Config
	target *Target
	pusher pusher
	status *statusGate
	logger *slog.Logger

	// pokes coalesces evaluation requests for the scheduler loop.
	pokes chan struct{}

	// evalMu serializes evaluations with attempt outcome reports so
	// emitted statuses follow the order of state changes.
	evalMu sync.Mutex

	// mu guards the run context and the current watcher.
	mu          sync.Mutex
	runCtx      context.Context
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	attempts sync.WaitGroup
}

// NewEngine creates an engine with an empty target. Status changes are
// forwarded to emitter, which may be nil.
func NewEngine(cfg Config, client *pantry.Client, emitter Emitter, logger *slog.Logger) *Engine {
	return newEngine(cfg, client, emitter, logger)
}

func newEngine(cfg Config, p pusher, emitter Emitter, logger *slog.Logger) *Engine {
	cfg.applyDefaults()

	return &Engine{
		cfg:    cfg,
		target: NewTarget(),
		pusher: p,
		status: newStatusGate(emitter),
		logger: logger,
		pokes:  make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the target state.
func (e *Engine) Snapshot() Snapshot {
	return e.target.Snapshot()
}

// Status returns the most recently emitted status.
func (e *Engine) Status() Status {
	return e.status.Last()
}

// LiveDataURL returns the endpoint the current file is pushed to, or ""
// when no destination is set or the file does not exist.
func (e *Engine) LiveDataURL() string {
	snap := e.target.Snapshot()

	return e.cfg.Resolver.Resolve(snap.PantryID, pantry.BasketName(snap.Path))
}

// SetFile replaces the watched file. The previous watcher is fully torn
// down before the new one starts, and the file is marked modified to
// force an initial upload. An attempt already in flight is not stopped.
func (e *Engine) SetFile(path string) {
	if path != "" {
		path = filepath.Clean(path)
	}

	e.target.SetPath(path)

	e.mu.Lock()
	e.stopWatcherLocked()

	if e.runCtx != nil && path != "" {
		e.startWatcherLocked(path)
	}
	e.mu.Unlock()

	e.logger.Info("watched file set", slog.String("path", path))
	e.Poke()
}

// SetDestination replaces the destination id and marks the file
// modified so it is pushed to the new basket.
func (e *Engine) SetDestination(pantryID string) {
	e.target.SetPantryID(pantryID)
	e.logger.Info("destination set", slog.Bool("configured", pantryID != ""))
	e.Poke()
}

// SetEncoding changes the payload encoding used by later attempts.
func (e *Engine) SetEncoding(enc Encoding) {
	e.target.SetEncoding(enc)
	e.logger.Info("encoding set", slog.String("encoding", enc.String()))
	e.Poke()
}

// Poke requests an evaluation from the scheduler loop. It never blocks;
// requests made while one is pending are merged.
func (e *Engine) Poke() {
	select {
	case e.pokes <- struct{}{}:
	default:
	}
}

// Run drives the scheduler until ctx is cancelled: it evaluates on every
// poke and on every tick, and keeps the watcher for the current file
// running. On return the watcher is stopped and in-flight attempts
// have finished.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx

	if path := e.target.Snapshot().Path; path != "" {
		e.startWatcherLocked(path)
	}
	e.mu.Unlock()

	defer e.shutdown()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("sync engine started",
		slog.Duration("tick", e.cfg.TickInterval),
		slog.Duration("debounce", e.cfg.Debounce),
		slog.Duration("cooldown", e.cfg.Cooldown),
	)

	e.Evaluate()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.pokes:
			e.Evaluate()
		case <-ticker.C:
			e.Evaluate()
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	e.stopWatcherLocked()
	e.runCtx = nil
	e.mu.Unlock()

	e.attempts.Wait()
	e.logger.Info("sync engine stopped")
}

// Evaluate applies the scheduling decision to the current target state:
// report na without a file, start an upload when one is due and none is
// running, report uploading while busy, and otherwise report ok or
// missing depending on whether the file exists. It never waits for an
// attempt and is safe to call from any goroutine.
func (e *Engine) Evaluate() {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	d := e.target.decide()

	switch {
	case d.start:
		e.status.Emit(d.status)
		e.startAttempt(d.snap)

	case d.statPath != "":
		if _, err := os.Stat(d.statPath); err != nil {
			e.status.Emit(Status{Kind: StatusMissing})
		} else {
			e.status.Emit(Status{Kind: StatusOK})
		}

	default:
		if d.needsDestination {
			e.logger.Debug("upload due but no destination configured")
		}

		e.status.Emit(d.status)
	}
}

func (e *Engine) startAttempt(snap Snapshot) {
	e.mu.Lock()
	ctx := e.runCtx
	e.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	e.attempts.Add(1)

	go e.attempt(ctx, snap)
}

// attempt runs one upload: encode, send, record the outcome, cool down,
// and hand the target back to the scheduler. The target stays busy for
// the whole attempt so no other attempt can start.
func (e *Engine) attempt(ctx context.Context, snap Snapshot) {
	defer e.attempts.Done()

	logger := e.logger.With(
		slog.String("attempt", uuid.NewString()[:8]),
		slog.String("path", snap.Path),
	)
	logger.Debug("upload attempt started",
		slog.Uint64("revision", snap.Revision),
		slog.String("encoding", snap.Encoding.String()),
	)

	failure := e.transfer(ctx, snap, logger)

	e.evalMu.Lock()
	e.target.finish(snap.Revision, failure == nil, failure, time.Now().Add(e.cfg.Cooldown))

	if failure != nil {
		e.status.Emit(*failure)
	}
	e.evalMu.Unlock()

	timer := time.NewTimer(e.cfg.Cooldown)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	e.target.release()
	logger.Debug("cooldown finished")

	e.Poke()
}

// transfer encodes and pushes the file. It returns nil on success and
// the status to report otherwise.
func (e *Engine) transfer(ctx context.Context, snap Snapshot, logger *slog.Logger) *Status {
	payload, name, err := Encode(snap.Path, snap.Encoding)
	if err != nil {
		logger.Warn("file could not be read", slog.String("error", err.Error()))
		st := errorStatus(err)

		return &st
	}

	endpoint := e.cfg.Resolver.Resolve(snap.PantryID, pantry.EscapeName(name))

	e.target.setPhase(PhaseSending)

	pushCtx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
	defer cancel()

	outcome, err := e.pusher.Push(pushCtx, endpoint, pantry.Basket{
		Filename:     name,
		Data:         payload,
		LastModified: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if outcome == pantry.Success {
		logger.Info("uploaded", slog.String("file", name), slog.Int("bytes", len(payload)))
		return nil
	}

	attrs := []any{slog.String("outcome", outcome.String())}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", err.Error()),
			slog.Bool("transient", pantry.IsTransient(err)),
		)
	}

	logger.Warn("upload failed", attrs...)

	return &Status{Kind: StatusFailed}
}

func (e *Engine) fileChanged() {
	e.target.MarkModified()
	e.Poke()
}

func (e *Engine) startWatcherLocked(path string) {
	ctx, cancel := context.WithCancel(e.runCtx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		e.superviseWatcher(ctx, path)
	}()

	e.watchCancel = cancel
	e.watchDone = done
}

// superviseWatcher keeps a watcher running for path until ctx is done.
// A watcher that fails to start or stops with an error is started again
// after a growing delay. Once a restarted watcher is registered the file
// is marked modified, since changes made while unwatched were missed.
func (e *Engine) superviseWatcher(ctx context.Context, path string) {
	backoff := watchRetryMin
	restarted := false

	for {
		started := false

		w := NewWatcher(path, e.cfg.Debounce, e.fileChanged, e.logger)
		w.onStart = func() {
			started = true

			if restarted {
				e.fileChanged()
			}
		}

		err := w.Watch(ctx)
		if ctx.Err() != nil {
			return
		}

		if started {
			backoff = watchRetryMin
		}

		attrs := []any{slog.String("path", path), slog.Duration("backoff", backoff)}
		if err != nil && !errors.Is(err, context.Canceled) {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		e.logger.Warn("file watcher stopped, restarting", attrs...)

		jitter := time.Duration(rand.Int64N(int64(backoff) / 2))
		timer := time.NewTimer(backoff + jitter)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		restarted = true
		backoff = min(backoff*2, watchRetryMax)
	}
}

func (e *Engine) stopWatcherLocked() {
	if e.watchCancel == nil {
		return
	}

	e.watchCancel()
	<-e.watchDone

	e.watchCancel = nil
	e.watchDone = nil
}
