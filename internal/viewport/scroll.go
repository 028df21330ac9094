package viewport

import "sync"

type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type ScrollState struct {
	Y         int
	Direction Direction
	// Visible is true while scrolling up or near the top of the page.
	Visible bool
}

type ScrollConfig struct {
	// Threshold is the minimum distance from the last committed offset that is committed.
	Threshold int
	// TopOffset keeps the header visible at or above this offset.
	TopOffset int
}

// ScrollObserver hides the header on scroll down and reveals it on scroll up.
type ScrollObserver struct {
	cfg      ScrollConfig
	onChange func(ScrollState)

	mu     sync.Mutex
	state  ScrollState
	remove func()
}

func NewScrollObserver(cfg ScrollConfig, onChange func(ScrollState)) *ScrollObserver {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &ScrollObserver{cfg: cfg, onChange: onChange, state: ScrollState{Visible: true}}
}

func (o *ScrollObserver) Attach(src Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remove != nil {
		return
	}
	o.remove = src.OnScroll(o.handle)
}

func (o *ScrollObserver) Detach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remove != nil {
		o.remove()
		o.remove = nil
	}
}

func (o *ScrollObserver) State() ScrollState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *ScrollObserver) handle(y int) {
	o.mu.Lock()
	if abs(y-o.state.Y) < o.cfg.Threshold {
		o.mu.Unlock()
		return
	}
	direction := DirectionDown
	if y < o.state.Y {
		direction = DirectionUp
	}
	prev := o.state
	o.state = ScrollState{
		Y:         y,
		Direction: direction,
		Visible:   direction == DirectionUp || y <= o.cfg.TopOffset,
	}
	state := o.state
	o.mu.Unlock()

	if o.onChange != nil && (prev.Direction != state.Direction || prev.Visible != state.Visible) {
		o.onChange(state)
	}
}
