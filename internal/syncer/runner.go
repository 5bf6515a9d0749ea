package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// TaskMode selects what a submitted task runs.
type TaskMode string

const (
	// ModeFull pulls from the relays and then pushes all pending records.
	ModeFull TaskMode = "full"
	// ModePush pushes a single record by kind and slug.
	ModePush TaskMode = "push"
	// ModePull runs the pull half only.
	ModePull TaskMode = "pull"
)

// Task is one unit of sync work.
type Task struct {
	Mode TaskMode
	Kind models.Kind
	Slug string
}

// Result is delivered on the channel returned by Submit once the task
// has run.
type Result struct {
	Report   SyncReport
	Outcome  PushOutcome
	Disabled bool
	Err      error
}

// Runner serializes sync work. One goroutine owns the cycle: tasks are
// submitted over a channel and run one at a time, so two full syncs
// never race each other over the same records. An interval ticker adds
// periodic cycles when the settings ask for them.
type Runner struct {
	engine   *Engine
	log      *slog.Logger
	interval time.Duration
	tasks    chan taskReq

	// lastCycle is read and written only by the Run goroutine.
	lastCycle time.Time
}

type taskReq struct {
	task Task
	res  chan Result
}

// NewRunner wires a runner around an engine. interval is the tick
// period used when sync frequency is set to interval mode.
func NewRunner(log *slog.Logger, engine *Engine, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{
		engine:   engine,
		log:      log,
		interval: interval,
		tasks:    make(chan taskReq, 64),
	}
}

// Submit queues a task and returns a channel that receives exactly one
// Result. When the queue is full the result carries ErrBusy
// immediately; callers that do not care can drop the channel, the send
// side is buffered and never blocks the runner.
func (r *Runner) Submit(t Task) <-chan Result {
	res := make(chan Result, 1)
	select {
	case r.tasks <- taskReq{task: t, res: res}:
	default:
		res <- Result{Err: fmt.Errorf("sync: queue full: %w", apperr.ErrBusy)}
	}
	return res
}

// SubmitWait queues a task and blocks until it has run or ctx ends.
func (r *Runner) SubmitWait(ctx context.Context, t Task) (Result, error) {
	select {
	case res := <-r.Submit(t):
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run processes tasks until ctx is cancelled. It never runs two tasks
// at once; per-record parallelism lives inside the engine's full sync.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("sync: runner started", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("sync: runner stopped")
			return nil

		case req := <-r.tasks:
			req.res <- r.handle(ctx, req.task)

		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs a periodic full sync when settings allow it. Manual and
// instant frequencies skip the timer; instant records are pushed as
// they change, and a periodic pull for those comes from explicit or
// startup syncs.
func (r *Runner) tick(ctx context.Context) {
	settings, err := r.engine.store.Settings(ctx)
	if err != nil {
		r.log.Warn("sync: could not read settings on tick", slog.String("error", err.Error()))
		return
	}
	if !settings.RelaySyncEnabled || settings.SyncFrequency != models.FrequencyInterval {
		return
	}
	if time.Since(r.lastCycle) < r.interval/2 {
		// An explicit sync just ran; skip this tick.
		return
	}
	res := r.handle(ctx, Task{Mode: ModeFull})
	if res.Err != nil {
		r.log.Warn("sync: periodic cycle failed", slog.String("error", res.Err.Error()))
	}
}

func (r *Runner) handle(ctx context.Context, t Task) Result {
	settings, err := r.engine.store.Settings(ctx)
	if err != nil {
		return Result{Err: err}
	}
	if !settings.RelaySyncEnabled {
		r.log.Debug("sync: task skipped, relay sync disabled", slog.String("mode", string(t.Mode)))
		return Result{Disabled: true}
	}

	switch t.Mode {
	case ModeFull:
		rep, err := r.engine.FullSync(ctx)
		r.lastCycle = time.Now()
		return Result{Report: rep, Err: err}
	case ModePull:
		pull, err := r.engine.Pull(ctx)
		r.lastCycle = time.Now()
		return Result{Report: SyncReport{Pull: pull}, Err: err}
	case ModePush:
		out, err := r.engine.PushRecord(ctx, t.Kind, t.Slug)
		return Result{Outcome: out, Err: err}
	default:
		return Result{Err: fmt.Errorf("sync: unknown task mode %q: %w", t.Mode, apperr.ErrInvalid)}
	}
}
