package livelist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus/api/internal/client"
	"campus/api/internal/realtime"
)

// DefaultHeartbeat keeps a tracked member inside the server's 60s presence window.
const DefaultHeartbeat = 30 * time.Second

type PresenceAPI interface {
	TrackPresence(ctx context.Context, channel string) (client.PresenceSnapshot, error)
	UntrackPresence(ctx context.Context, channel string) (client.PresenceSnapshot, error)
	Presence(ctx context.Context, channel string) (client.PresenceSnapshot, error)
}

type PresenceOptions struct {
	Options
	// Heartbeat is how often the caller re-tracks itself; zero means DefaultHeartbeat.
	Heartbeat time.Duration
}

// Presence tracks the caller on a channel and mirrors the channel's online members. It
// tracks on start, re-tracks on every heartbeat, follows the snapshots the server
// publishes, and untracks on close. Snapshots older than the one held are ignored.
type Presence struct {
	api       PresenceAPI
	channel   string
	bus       realtime.Bus
	heartbeat time.Duration
	onChange  func(Snapshot[client.PresenceMember])
	logger    *zap.Logger

	mu      sync.Mutex
	members []client.PresenceMember
	at      time.Time
	loading bool
	started bool
	closed  bool
	sub     realtime.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPresence(api PresenceAPI, channel string, opts PresenceOptions, onChange func(Snapshot[client.PresenceMember])) *Presence {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Presence{
		api:       api,
		channel:   channel,
		bus:       opts.Bus,
		heartbeat: heartbeat,
		onChange:  onChange,
		logger:    logger.With(zap.String("list", "presence"), zap.String("channel", channel)),
		members:   []client.PresenceMember{},
		loading:   true,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the channel's snapshots, then tracks the caller and keeps the
// heartbeat going in the background.
func (p *Presence) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if p.bus != nil {
		sub, err := realtime.SubscribePresence(p.bus, p.channel, p.logger, p.receive)
		if err != nil {
			p.logger.Warn("subscribe to presence", zap.Error(err))
			return err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = sub.Unsubscribe()
			return ErrClosed
		}
		p.sub = sub
		p.mu.Unlock()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.run()
	}()
	return nil
}

func (p *Presence) run() {
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		p.settle(p.api.TrackPresence(p.ctx, p.channel))
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refetch reads the channel's members without tracking.
func (p *Presence) Refetch(ctx context.Context) error {
	if p.isClosed() {
		return ErrClosed
	}
	snap, err := p.api.Presence(ctx, p.channel)
	p.settle(snap, err)
	return err
}

func (p *Presence) Snapshot() Snapshot[client.PresenceMember] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Online reports whether userID is among the current members.
func (p *Presence) Online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Close stops the heartbeat, drops the subscription and untracks the caller.
func (p *Presence) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()

	p.cancel()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Warn("unsubscribe", zap.Error(err))
		}
	}
	p.wg.Wait()

	if !started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.api.UntrackPresence(ctx, p.channel); err != nil {
		p.logger.Warn("untrack presence", zap.Error(err))
	}
}

func (p *Presence) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Presence) receive(snap realtime.PresenceSnapshot) {
	members := make([]client.PresenceMember, len(snap.Members))
	for i, m := range snap.Members {
		members[i] = client.PresenceMember{UserID: m.UserID, OnlineAt: m.OnlineAt}
	}
	next := client.PresenceSnapshot{Channel: snap.Channel, Members: members, At: snap.At}
	if err := next.Validate(); err != nil {
		p.logger.Warn("drop presence snapshot", zap.Error(err))
		return
	}
	p.accept(next)
}

// settle applies a fetched snapshot. A failed fetch is logged and leaves the members
// empty and not loading.
func (p *Presence) settle(snap client.PresenceSnapshot, err error) {
	if err == nil {
		p.accept(snap)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Error("fetch presence", zap.Error(err))
	p.members = []client.PresenceMember{}
	p.loading = false
	out := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(out)
}

func (p *Presence) accept(snap client.PresenceSnapshot) {
	p.mu.Lock()
	if p.closed || snap.At.Before(p.at) {
		p.mu.Unlock()
		return
	}
	p.at = snap.At
	p.members = append([]client.PresenceMember{}, snap.Members...)
	p.loading = false
	out := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(out)
}

func (p *Presence) snapshotLocked() Snapshot[client.PresenceMember] {
	data := make([]client.PresenceMember, len(p.members))
	copy(data, p.members)
	return Snapshot[client.PresenceMember]{Data: data, Loading: p.loading}
}

func (p *Presence) notify(s Snapshot[client.PresenceMember]) {
	if p.onChange != nil {
		p.onChange(s)
	}
}
