// Package debounce validates form fields after input settles. Each field keeps its own
// timer and sequence number so only the latest change can publish a result.
package debounce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultDelay = 500 * time.Millisecond

// Result is the verdict shown next to a field.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// CheckFunc validates one value. It must return promptly once ctx is cancelled.
type CheckFunc func(ctx context.Context, value string) (Result, error)

type fieldState struct {
	seq      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	checking bool
	result   Result
	hasValue bool
}

type Validator struct {
	delay    time.Duration
	checks   map[string]CheckFunc
	logger   *zap.Logger
	onResult func(field string, seq uint64, r Result)

	mu     sync.Mutex
	fields map[string]*fieldState
	closed bool
}

type Option func(*Validator)

func WithDelay(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.delay = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// OnResult registers a callback invoked after a result is applied. It runs on the check
// goroutine without the validator lock held.
func OnResult(fn func(field string, seq uint64, r Result)) Option {
	return func(v *Validator) { v.onResult = fn }
}

// New returns a validator with one check per field name.
func New(checks map[string]CheckFunc, opts ...Option) *Validator {
	v := &Validator{
		delay:  DefaultDelay,
		checks: checks,
		logger: zap.NewNop(),
		fields: make(map[string]*fieldState),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) state(field string) *fieldState {
	st, ok := v.fields[field]
	if !ok {
		st = &fieldState{}
		v.fields[field] = st
	}
	return st
}

// Change records a new value for field. It restarts the settle timer and cancels any
// check still running for an older value. It returns the sequence number issued.
func (v *Validator) Change(field, value string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0
	}
	check, ok := v.checks[field]
	if !ok {
		v.logger.Warn("no validator for field", zap.String("field", field))
		return 0
	}

	st := v.state(field)
	st.seq++
	seq := st.seq
	if st.timer != nil {
		st.timer.Stop()
	}
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.checking = true
	st.timer = time.AfterFunc(v.delay, func() { v.fire(field, value, seq, check) })
	return seq
}

func (v *Validator) fire(field, value string, seq uint64, check CheckFunc) {
	v.mu.Lock()
	st := v.fields[field]
	if v.closed || st == nil || st.seq != seq {
		v.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	v.mu.Unlock()

	result, err := check(ctx, value)
	cancel()

	v.mu.Lock()
	if v.closed || st.seq != seq {
		v.mu.Unlock()
		return
	}
	st.cancel = nil
	st.checking = false
	if err != nil {
		v.mu.Unlock()
		v.logger.Warn("field check failed", zap.String("field", field), zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	st.result = result
	st.hasValue = true
	onResult := v.onResult
	v.mu.Unlock()

	if onResult != nil {
		onResult(field, seq, result)
	}
}

// Result returns the last applied verdict for field.
func (v *Validator) Result(field string) (Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.fields[field]
	if !ok || !st.hasValue {
		return Result{}, false
	}
	return st.result, true
}

// Checking reports whether a change for field is waiting to settle or being checked.
func (v *Validator) Checking(field string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.fields[field]
	return ok && st.checking
}

// Close stops all timers and cancels in-flight checks; later results are dropped.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for _, st := range v.fields {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.cancel != nil {
			st.cancel()
		}
		st.checking = false
	}
}
