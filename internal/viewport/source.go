// Package viewport derives layout flags (mobile breakpoint, header visibility) from raw
// resize and scroll events, committing only changes large enough to matter.
package viewport

import "sync"

// Source delivers viewport events. Each On* call returns a func removing that listener.
type Source interface {
	OnResize(fn func(width int)) (remove func())
	OnScroll(fn func(y int)) (remove func())
}

// Emitter is an in-process Source fed by the embedding shell.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	resize map[int]func(int)
	scroll map[int]func(int)
}

func NewEmitter() *Emitter {
	return &Emitter{resize: map[int]func(int){}, scroll: map[int]func(int){}}
}

func (e *Emitter) OnResize(fn func(int)) func() {
	return e.add(e.resize, fn)
}

func (e *Emitter) OnScroll(fn func(int)) func() {
	return e.add(e.scroll, fn)
}

func (e *Emitter) add(set map[int]func(int), fn func(int)) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	set[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(set, id)
			e.mu.Unlock()
		})
	}
}

// Resize delivers a width to every resize listener.
func (e *Emitter) Resize(width int) {
	for _, fn := range e.snapshot(e.resize) {
		fn(width)
	}
}

// Scroll delivers a vertical offset to every scroll listener.
func (e *Emitter) Scroll(y int) {
	for _, fn := range e.snapshot(e.scroll) {
		fn(y)
	}
}

// Listeners returns the number of attached resize and scroll listeners.
func (e *Emitter) Listeners() (resize, scroll int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.resize), len(e.scroll)
}

func (e *Emitter) snapshot(set map[int]func(int)) []func(int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fns := make([]func(int), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
