// Package livelist keeps an in-memory list in sync with the API: one fetch on start, then
// row-level change events from the realtime bus applied without re-fetching.
package livelist

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"campus/api/internal/realtime"
)

var ErrClosed = errors.New("livelist: closed")

type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// ApplyFunc folds a change event into data. It reports false when the event does not
// concern the list, in which case data is left untouched. An error means the event row
// was unusable; the list logs it and drops the event.
type ApplyFunc[T any] func(data []T, event realtime.ChangeEvent) ([]T, bool, error)

type Snapshot[T any] struct {
	Data    []T
	Loading bool
}

type Config[T any] struct {
	// Name labels log lines.
	Name  string
	Fetch FetchFunc[T]
	// Bus and Tables are optional; without both the list only changes on Refetch.
	Bus    realtime.Bus
	Tables []string
	Apply  ApplyFunc[T]
	// OnChange is called after every committed change, outside the list's lock.
	OnChange func(Snapshot[T])
	Logger   *zap.Logger
}

type List[T any] struct {
	cfg    Config[T]
	logger *zap.Logger

	mu      sync.Mutex
	data    []T
	loading bool
	gen     uint64
	started bool
	closed  bool
	subs    []realtime.Subscription

	// pending holds events seen while the latest fetch runs; they are replayed onto its result.
	fetching bool
	pending  []realtime.ChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New[T any](cfg Config[T]) *List[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name != "" {
		logger = logger.With(zap.String("list", cfg.Name))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &List[T]{
		cfg:     cfg,
		logger:  logger,
		data:    []T{},
		loading: true,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the configured tables, then kicks off the initial fetch in the
// background, so no change committed while the fetch runs is missed. Calling Start again
// is a no-op.
func (l *List[T]) Start() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	if l.cfg.Bus != nil && l.cfg.Apply != nil {
		for _, table := range l.cfg.Tables {
			sub, err := realtime.SubscribeChanges(l.cfg.Bus, table, "", l.logger, l.apply)
			if err != nil {
				l.logger.Warn("subscribe to changes", zap.String("table", table), zap.Error(err))
				return err
			}
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				_ = sub.Unsubscribe()
				return ErrClosed
			}
			l.subs = append(l.subs, sub)
			l.mu.Unlock()
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		_ = l.Refetch(l.ctx)
	}()
	return nil
}

// Refetch replaces the data with a fresh fetch. When fetches overlap the most recently
// started one wins. A failed fetch is logged and leaves the list empty and not loading.
func (l *List[T]) Refetch(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.gen++
	gen := l.gen
	l.fetching = true
	l.pending = nil
	l.mu.Unlock()

	data, err := l.cfg.Fetch(ctx)
	if err != nil {
		l.logger.Error("fetch list", zap.Error(err))
		data = nil
	}
	if data == nil {
		data = []T{}
	}

	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return err
	}
	l.data = data
	if err == nil {
		for _, event := range l.pending {
			if next, changed, applyErr := l.cfg.Apply(l.data, event); applyErr == nil && changed {
				l.data = next
			}
		}
	}
	l.fetching = false
	l.pending = nil
	l.loading = false
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.notify(snap)
	return err
}

func (l *List[T]) Snapshot() Snapshot[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Close cancels any fetch in flight and drops the subscriptions. Later events and fetch
// results are discarded.
func (l *List[T]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	l.cancel()
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Warn("unsubscribe", zap.Error(err))
		}
	}
	l.wg.Wait()
}

func (l *List[T]) apply(event realtime.ChangeEvent) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.fetching {
		l.pending = append(l.pending, event)
	}
	data, changed, err := l.cfg.Apply(l.data, event)
	if err != nil {
		l.mu.Unlock()
		l.logger.Warn("drop change event", zap.String("table", event.Table),
			zap.String("op", string(event.Op)), zap.Error(err))
		return
	}
	if !changed {
		l.mu.Unlock()
		return
	}
	l.data = data
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.notify(snap)
}

func (l *List[T]) snapshotLocked() Snapshot[T] {
	data := make([]T, len(l.data))
	copy(data, l.data)
	return Snapshot[T]{Data: data, Loading: l.loading}
}

func (l *List[T]) notify(snap Snapshot[T]) {
	if l.cfg.OnChange != nil {
		l.cfg.OnChange(snap)
	}
}
