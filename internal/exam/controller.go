// Package exam drives the submit-then-poll state machine for recommendation
// jobs: submit an exam code, poll the status endpoint until the job reaches
// a terminal state, and hand the transformed result to the consumer.
//
// The machine is idle → loading → {success | error}; error returns to
// loading on re-submission, and a fresh submission starts a new job. A
// completion flag enforces first-terminal-wins: a late-arriving poll
// response can never overwrite a state an earlier response finalized.
package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"majorpath.org/internal/api"
	"majorpath.org/internal/obs"
	"majorpath.org/internal/recommend"
)

// State is the machine state exposed to consumers.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// ExamCodeLength is the required exam code length, checked before any
// network call.
const ExamCodeLength = 8

const defaultInterval = 5 * time.Second

var (
	// ErrInvalidExamCode is a pure validation failure; no request was made.
	ErrInvalidExamCode = fmt.Errorf("exam code must be exactly %d characters", ExamCodeLength)
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("exam controller closed")
	// ErrNoJob is returned when an operation needs an attached job.
	ErrNoJob = errors.New("no job attached")
)

// Snapshot is the observable state handed to consumers on every change.
type Snapshot struct {
	State            State
	JobID            string
	ExamCode         string
	Progress         int
	CurrentStep      string
	Err              string
	Result           *recommend.Result
	EstimatedSeconds int
}

// Backend is the slice of the API client the controller needs.
type Backend interface {
	ProcessExam(ctx context.Context, examCode string) (api.Submission, error)
	ExamStatus(ctx context.Context, jobID, lang string) (api.JobStatus, error)
}

// Ticker abstracts the repeating poll timer so tests can drive ticks
// manually.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Controller owns the polling timer, the job identity and the completion
// flag. One instance serves both the submit flow (Submit) and the read-only
// result flow (Attach, SetLanguage). Safe for concurrent use.
type Controller struct {
	backend   Backend
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onUpdate  func(Snapshot)

	mu        sync.Mutex
	snap      Snapshot
	lang      string
	gen       int
	completed bool
	closed    bool
	cancel    context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval overrides the fixed poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTickerFactory overrides the poll timer construction (tests).
func WithTickerFactory(fn func(time.Duration) Ticker) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

// WithObserver installs a snapshot callback. It runs with the controller's
// internal lock held; do not call back into the controller from it.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// WithLanguage sets the initial result language.
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.lang = lang }
}

// New constructs an idle Controller.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		interval:  defaultInterval,
		newTicker: newRealTicker,
		snap:      Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Language returns the current result language.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

// Submit validates the code, submits it and starts polling. The first poll
// fires immediately; the interval timer is armed only after it settles, so
// ticks never overlap. Submission failures transition the machine to error
// and are also returned to the caller.
func (c *Controller) Submit(ctx context.Context, code string) error {
	if len(code) != ExamCodeLength {
		return ErrInvalidExamCode
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopPollLocked()
	c.gen++
	gen := c.gen
	c.completed = false
	c.snap = Snapshot{State: StateLoading, ExamCode: code}
	c.emitLocked()
	c.mu.Unlock()

	sub, err := c.backend.ProcessExam(ctx, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		// A reset or teardown raced the submission; its outcome no longer
		// belongs to this machine.
		return err
	}
	if err != nil {
		c.snap.State = StateError
		c.snap.Err = submissionMessage(err)
		c.emitLocked()
		return err
	}
	c.snap.JobID = sub.JobID
	c.snap.EstimatedSeconds = sub.EstimatedTimeSeconds
	c.startPollLocked(gen, sub.JobID)
	return nil
}

// Attach starts the read-only flow for an externally supplied job identity:
// no submission, same polling and terminal-state rules.
func (c *Controller) Attach(jobID string) error {
	if jobID == "" {
		return ErrNoJob
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.restartLocked(jobID)
	return nil
}

// SetLanguage switches the result language and re-polls the attached job
// from scratch, back through loading.
func (c *Controller) SetLanguage(lang string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.snap.JobID == "" {
		return ErrNoJob
	}
	c.lang = lang
	c.restartLocked(c.snap.JobID)
	return nil
}

// Reset stops any active timer and returns the machine to idle, discarding
// job identity, progress and error state. Resetting an idle machine is a
// no-op.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.snap.State == StateIdle && c.cancel == nil {
		return
	}
	c.stopPollLocked()
	c.gen++
	c.completed = false
	c.snap = Snapshot{State: StateIdle}
	c.emitLocked()
}

// Close tears the controller down. The poll timer is released and no state
// mutation or callback happens after Close returns; a response already in
// flight is discarded when it lands.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopPollLocked()
}

func (c *Controller) restartLocked(jobID string) {
	c.stopPollLocked()
	c.gen++
	c.completed = false
	c.snap = Snapshot{State: StateLoading, JobID: jobID}
	c.emitLocked()
	c.startPollLocked(c.gen, jobID)
}

func (c *Controller) startPollLocked(gen int, jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.pollLoop(ctx, gen, jobID)
}

func (c *Controller) stopPollLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) pollLoop(ctx context.Context, gen int, jobID string) {
	if c.pollOnce(ctx, gen, jobID) {
		return
	}
	t := c.newTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if c.staleGen(gen) {
				return
			}
			if c.pollOnce(ctx, gen, jobID) {
				return
			}
		}
	}
}

func (c *Controller) staleGen(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.completed || c.gen != gen
}

// pollOnce performs one status fetch and applies it. It reports true when
// the loop should stop (terminal state, stale generation or teardown).
func (c *Controller) pollOnce(ctx context.Context, gen int, jobID string) bool {
	st, err := c.backend.ExamStatus(ctx, jobID, c.Language())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen || c.completed {
		obs.PollTick("stale")
		return true
	}
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by reset or teardown, not a job failure.
			return true
		}
		obs.PollTick("error")
		c.completed = true
		c.snap.State = StateError
		c.snap.Err = pollMessage(err)
		c.emitLocked()
		return true
	}
	return c.applyStatusLocked(st)
}

// applyStatusLocked is the single terminal-state handling path shared by
// the submit flow and the read-only flow.
func (c *Controller) applyStatusLocked(st api.JobStatus) bool {
	switch st.Status {
	case api.JobCompleted:
		if st.Result == nil {
			obs.PollTick("error")
			c.completed = true
			c.snap.State = StateError
			c.snap.Err = "completed job carried no result"
			c.emitLocked()
			return true
		}
		res, err := recommend.Transform(st.Result)
		if err != nil {
			obs.PollTick("error")
			c.completed = true
			c.snap.State = StateError
			c.snap.Err = err.Error()
			c.emitLocked()
			return true
		}
		obs.PollTick("completed")
		c.completed = true
		c.snap.State = StateSuccess
		c.snap.Progress = 100
		c.snap.CurrentStep = st.CurrentStep
		c.snap.Result = res
		c.snap.Err = ""
		c.emitLocked()
		return true
	case api.JobFailed:
		obs.PollTick("failed")
		c.completed = true
		c.snap.State = StateError
		msg := st.ErrorMessage
		if msg == "" {
			msg = "exam processing failed"
		}
		c.snap.Err = msg
		c.emitLocked()
		return true
	default:
		obs.PollTick("progress")
		c.snap.State = StateLoading
		c.snap.Progress = st.Progress
		c.snap.CurrentStep = st.CurrentStep
		c.emitLocked()
		return false
	}
}

func (c *Controller) emitLocked() {
	if c.onUpdate != nil && !c.closed {
		c.onUpdate(c.snap)
	}
}

func submissionMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrNotFound):
		return "exam not found"
	case errors.Is(err, api.ErrInvalidInput):
		return "invalid exam code"
	default:
		if msg := api.Message(err); msg != "" {
			return msg
		}
		return "failed to submit exam code"
	}
}

func pollMessage(err error) string {
	if msg := api.Message(err); msg != "" {
		return msg
	}
	return "failed to check exam status"
}
