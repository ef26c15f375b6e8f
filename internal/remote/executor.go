package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Result is the outcome of one remote command. Text holds stdout followed
// by stderr. Fault is nil unless the command could not be run.
type Result struct {
	Text  string
	Fault error
}

// OK reports whether the command ran.
func (r Result) OK() bool {
	return r.Fault == nil
}

// Options configures an Executor.
type Options struct {
	// OutputLimit caps each captured stream in bytes.
	OutputLimit int
	Logger      *slog.Logger
}

// Executor serializes catalog commands onto a shared Session. Callers are
// served one at a time in arrival order.
type Executor struct {
	session Session
	catalog Catalog
	queue   *semaphore.Weighted
	limit   int
	logger  *slog.Logger
}

// NewExecutor returns an executor owning session.
func NewExecutor(session Session, catalog Catalog, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &Executor{
		session: session,
		catalog: catalog,
		queue:   semaphore.NewWeighted(1),
		limit:   limit,
		logger:  logger,
	}
}

// Catalog returns the commands this executor accepts.
func (e *Executor) Catalog() Catalog {
	return e.catalog
}

// Execute runs the named catalog command. The context bounds only the time
// spent waiting for the session; once issued a command runs to completion.
func (e *Executor) Execute(ctx context.Context, name string, args ...string) Result {
	command, err := e.catalog.Render(name, args...)
	if err != nil {
		e.logger.Warn("Rejected remote command", "command", name, "error", err)
		return Result{Fault: err}
	}

	if err := e.queue.Acquire(ctx, 1); err != nil {
		return Result{Fault: fmt.Errorf("wait for remote session: %w", err)}
	}
	defer e.queue.Release(1)

	stdout := NewRingBuffer(e.limit)
	stderr := NewRingBuffer(e.limit)
	start := time.Now()
	err = e.session.Run(context.WithoutCancel(ctx), command, stdout, stderr)
	text := strings.ToValidUTF8(string(stdout.Bytes())+string(stderr.Bytes()), "\uFFFD")

	if dropped := stdout.Dropped() + stderr.Dropped(); dropped > 0 {
		e.logger.Warn("Remote output truncated", "command", name, "dropped_bytes", dropped)
	}
	if err != nil {
		e.logger.Error("Remote command failed", "command", name, "duration", time.Since(start), "error", err)
		return Result{Text: text, Fault: fmt.Errorf("run %s: %w", name, err)}
	}
	e.logger.Debug("Remote command finished", "command", name, "duration", time.Since(start), "bytes", len(text))
	return Result{Text: text}
}

// Ping checks the underlying session.
func (e *Executor) Ping(ctx context.Context) error {
	return e.session.Ping(ctx)
}

// Close waits for the running command, if any, and closes the session.
func (e *Executor) Close() error {
	if err := e.queue.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.queue.Release(1)
	return e.session.Close()
}
