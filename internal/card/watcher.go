// Package card publishes the value behind each dashboard card. A Watcher
// follows one card; every fetch it issues is tagged with the query and a
// generation number, and a result is applied only while both still match.
package card

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
)

// Fetcher retrieves a card value. *api.Client implements it.
type Fetcher interface {
	FetchCard(ctx context.Context, q api.CardQuery) (api.CardMetric, error)
}

// State is one published value of a card stream.
type State struct {
	Query     api.CardQuery
	Metric    api.CardMetric
	HasValue  bool
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Service creates Watchers that share a Fetcher.
type Service struct {
	fetcher Fetcher
	logger  zerolog.Logger
	timeout time.Duration
}

// NewService builds a Service. timeout bounds each fetch; zero means no bound
// beyond the fetcher's own.
func NewService(fetcher Fetcher, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger.With().Str("component", "card").Logger(),
	}
}

// Watcher is the value stream for one card.
type Watcher struct {
	svc     *Service
	ctx     context.Context
	updates chan State
	done    chan struct{}

	mu       sync.Mutex
	active   api.CardQuery
	gen      uint64
	cancel   context.CancelFunc
	state    State
	closed   bool
	inflight sync.WaitGroup
}

// Observe starts watching q. The first fetch is issued before Observe returns
// and {Loading: true} is already published. The watcher stops when ctx ends
// or Close is called.
func (s *Service) Observe(ctx context.Context, q api.CardQuery) *Watcher {
	w := &Watcher{
		svc:     s,
		ctx:     ctx,
		updates: make(chan State, 1),
		done:    make(chan struct{}),
	}
	w.Switch(q)
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()
	return w
}

// Updates delivers state changes. Only the latest pending state is kept, so a
// slow reader sees the newest value rather than a backlog. The channel is
// closed by Close.
func (w *Watcher) Updates() <-chan State {
	return w.updates
}

// Current returns the latest state.
func (w *Watcher) Current() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Query returns the active query.
func (w *Watcher) Query() api.CardQuery {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Switch makes q the active query and fetches it. Results of fetches for the
// previous query are discarded when they arrive.
func (w *Watcher) Switch(q api.CardQuery) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.state = State{Query: q, Loading: true}
	w.startLocked(q)
}

// Refresh refetches the active query. The last value stays visible while
// the fetch runs.
func (w *Watcher) Refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.state.Loading = true
	w.state.Err = nil
	w.startLocked(w.active)
}

// Close stops the watcher and closes Updates. It waits for no fetch.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.gen++
	if w.cancel != nil {
		w.cancel()
	}
	close(w.done)
	close(w.updates)
}

// wait blocks until every fetch goroutine has returned.
func (w *Watcher) wait() {
	w.inflight.Wait()
}

func (w *Watcher) startLocked(q api.CardQuery) {
	if w.cancel != nil {
		w.cancel()
	}
	w.gen++
	w.active = q
	gen := w.gen

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if w.svc.timeout > 0 {
		ctx, cancel = context.WithTimeout(w.ctx, w.svc.timeout)
	} else {
		ctx, cancel = context.WithCancel(w.ctx)
	}
	w.cancel = cancel
	w.publishLocked()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer cancel()
		metric, err := w.svc.fetcher.FetchCard(ctx, q)
		w.apply(q, gen, metric, err)
	}()
}

func (w *Watcher) apply(q api.CardQuery, gen uint64, metric api.CardMetric, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.gen || q != w.active {
		w.svc.logger.Debug().
			Str("query", q.String()).
			Str("active", w.active.String()).
			Msg("discarding stale card response")
		return
	}

	w.state.Loading = false
	w.state.UpdatedAt = time.Now()
	if err != nil {
		w.state.Err = err
		w.svc.logger.Warn().Err(err).Str("query", q.String()).Msg("card fetch failed")
	} else {
		w.state.Metric = metric
		w.state.HasValue = true
		w.state.Err = nil
	}
	w.publishLocked()
}

func (w *Watcher) publishLocked() {
	select {
	case <-w.updates:
	default:
	}
	w.updates <- w.state
}
