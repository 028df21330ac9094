package viewport

import (
	"sync"
	"time"
)

const (
	DefaultBreakpoint = 768
	DefaultDelta      = 1
)

type ResizeState struct {
	Width    int
	IsMobile bool
}

type ResizeConfig struct {
	Breakpoint int
	// Delta is the minimum width change from the last committed width that is committed.
	Delta int
	// Settle delays commits until no resize arrived for this long; zero commits immediately.
	Settle time.Duration
}

// ResizeObserver tracks whether the viewport is below the mobile breakpoint.
type ResizeObserver struct {
	cfg      ResizeConfig
	onChange func(ResizeState)

	mu        sync.Mutex
	state     ResizeState
	committed bool
	pending   *time.Timer
	remove    func()
}

func NewResizeObserver(cfg ResizeConfig, onChange func(ResizeState)) *ResizeObserver {
	if cfg.Breakpoint <= 0 {
		cfg.Breakpoint = DefaultBreakpoint
	}
	if cfg.Delta <= 0 {
		cfg.Delta = DefaultDelta
	}
	return &ResizeObserver{cfg: cfg, onChange: onChange}
}

// Attach subscribes to src. Attaching an attached observer is a no-op.
func (o *ResizeObserver) Attach(src Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remove != nil {
		return
	}
	o.remove = src.OnResize(o.handle)
}

// Detach removes the listener and drops any commit still waiting to settle.
func (o *ResizeObserver) Detach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remove != nil {
		o.remove()
		o.remove = nil
	}
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
	}
}

func (o *ResizeObserver) State() ResizeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *ResizeObserver) handle(width int) {
	if o.cfg.Settle <= 0 {
		o.commit(width)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remove == nil {
		return
	}
	if o.pending != nil {
		o.pending.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(o.cfg.Settle, func() { o.settled(timer, width) })
	o.pending = timer
}

// settled commits width unless the observer was detached, or a later resize replaced
// timer, after it fired.
func (o *ResizeObserver) settled(timer *time.Timer, width int) {
	o.mu.Lock()
	if o.remove == nil || o.pending != timer {
		o.mu.Unlock()
		return
	}
	o.pending = nil
	state, changed := o.applyLocked(width)
	o.mu.Unlock()

	if changed && o.onChange != nil {
		o.onChange(state)
	}
}

func (o *ResizeObserver) commit(width int) {
	o.mu.Lock()
	state, changed := o.applyLocked(width)
	o.mu.Unlock()

	if changed && o.onChange != nil {
		o.onChange(state)
	}
}

func (o *ResizeObserver) applyLocked(width int) (ResizeState, bool) {
	if o.committed && abs(width-o.state.Width) < o.cfg.Delta {
		return o.state, false
	}
	prev := o.state
	o.state = ResizeState{Width: width, IsMobile: width < o.cfg.Breakpoint}
	first := !o.committed
	o.committed = true
	return o.state, first || prev != o.state
}
