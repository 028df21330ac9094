package viewport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder[T any] struct {
	mu     sync.Mutex
	states []T
}

func (r *recorder[T]) record(s T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.states...)
}

func TestResizeObserverBreakpoint(t *testing.T) {
	src := NewEmitter()
	rec := &recorder[ResizeState]{}
	obs := NewResizeObserver(ResizeConfig{}, rec.record)
	obs.Attach(src)
	defer obs.Detach()

	src.Resize(1024)
	assert.False(t, obs.State().IsMobile)

	src.Resize(767)
	assert.True(t, obs.State().IsMobile)

	src.Resize(768)
	assert.False(t, obs.State().IsMobile)

	assert.Equal(t, []ResizeState{
		{Width: 1024},
		{Width: 767, IsMobile: true},
		{Width: 768},
	}, rec.all())
}

func TestResizeObserverIgnoresSmallDeltas(t *testing.T) {
	src := NewEmitter()
	obs := NewResizeObserver(ResizeConfig{Breakpoint: 600, Delta: 50}, nil)
	obs.Attach(src)
	defer obs.Detach()

	src.Resize(620)
	src.Resize(590)
	assert.Equal(t, ResizeState{Width: 620}, obs.State())

	src.Resize(560)
	assert.Equal(t, ResizeState{Width: 560, IsMobile: true}, obs.State())
}

func TestResizeObserverSettle(t *testing.T) {
	src := NewEmitter()
	rec := &recorder[ResizeState]{}
	obs := NewResizeObserver(ResizeConfig{Settle: 30 * time.Millisecond}, rec.record)
	obs.Attach(src)
	defer obs.Detach()

	src.Resize(1200)
	src.Resize(900)
	src.Resize(500)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ResizeState{Width: 500, IsMobile: true}, rec.all()[0])
}

func TestResizeObserverDropsSettleFiredAfterDetach(t *testing.T) {
	src := NewEmitter()
	rec := &recorder[ResizeState]{}
	obs := NewResizeObserver(ResizeConfig{Settle: time.Hour}, rec.record)
	obs.Attach(src)

	src.Resize(1200)
	obs.mu.Lock()
	stale := obs.pending
	obs.mu.Unlock()
	src.Resize(500)
	obs.mu.Lock()
	current := obs.pending
	obs.mu.Unlock()

	obs.settled(stale, 1200)
	assert.Empty(t, rec.all())

	obs.Detach()
	obs.settled(current, 500)
	assert.Empty(t, rec.all())
	assert.Equal(t, ResizeState{}, obs.State())
}

func TestAttachIsIdempotentAndDetachRemovesListeners(t *testing.T) {
	src := NewEmitter()
	resize := NewResizeObserver(ResizeConfig{}, nil)
	scroll := NewScrollObserver(ScrollConfig{}, nil)

	resize.Attach(src)
	resize.Attach(src)
	scroll.Attach(src)
	scroll.Attach(src)

	r, s := src.Listeners()
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, s)

	resize.Detach()
	scroll.Detach()
	r, s = src.Listeners()
	assert.Zero(t, r)
	assert.Zero(t, s)

	src.Resize(300)
	assert.Zero(t, resize.State().Width)
}

func TestScrollObserverDirectionAndVisibility(t *testing.T) {
	src := NewEmitter()
	obs := NewScrollObserver(ScrollConfig{Threshold: 10, TopOffset: 50}, nil)
	obs.Attach(src)
	defer obs.Detach()

	assert.True(t, obs.State().Visible)

	src.Scroll(30)
	assert.Equal(t, ScrollState{Y: 30, Direction: DirectionDown, Visible: true}, obs.State())

	src.Scroll(200)
	assert.Equal(t, ScrollState{Y: 200, Direction: DirectionDown, Visible: false}, obs.State())

	src.Scroll(195)
	assert.Equal(t, 200, obs.State().Y, "moves below the threshold are not committed")

	src.Scroll(150)
	assert.Equal(t, ScrollState{Y: 150, Direction: DirectionUp, Visible: true}, obs.State())
}

func TestScrollObserverNotifiesOnlyOnFlagChange(t *testing.T) {
	src := NewEmitter()
	rec := &recorder[ScrollState]{}
	obs := NewScrollObserver(ScrollConfig{Threshold: 5}, rec.record)
	obs.Attach(src)
	defer obs.Detach()

	src.Scroll(100)
	src.Scroll(200)
	src.Scroll(300)
	src.Scroll(250)

	states := rec.all()
	require.Len(t, states, 2)
	assert.Equal(t, DirectionDown, states[0].Direction)
	assert.False(t, states[0].Visible)
	assert.Equal(t, DirectionUp, states[1].Direction)
	assert.True(t, states[1].Visible)
}
