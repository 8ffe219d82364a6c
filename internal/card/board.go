package card

import (
	"context"
	"sync"

	"github.com/five82/metricdeck/internal/api"
)

// Board watches a fixed set of cards that share one period selector.
type Board struct {
	ctx      context.Context
	cancel   context.CancelFunc
	watchers []*Watcher
	changes  chan State
	wg       sync.WaitGroup

	mu     sync.RWMutex
	period api.Period
}

// NewBoard starts a Watcher for every card at period.
func (s *Service) NewBoard(ctx context.Context, cards []string, period api.Period) *Board {
	ctx, cancel := context.WithCancel(ctx)
	b := &Board{
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan State, len(cards)+1),
		period:  period,
	}
	for _, name := range cards {
		w := s.Observe(ctx, api.CardQuery{Card: name, Period: period})
		b.watchers = append(b.watchers, w)
		b.wg.Add(1)
		go b.forward(w)
	}
	go func() {
		b.wg.Wait()
		close(b.changes)
	}()
	return b
}

func (b *Board) forward(w *Watcher) {
	defer b.wg.Done()
	for st := range w.Updates() {
		select {
		case b.changes <- st:
		case <-b.ctx.Done():
			return
		}
	}
}

// Changes merges the Updates of every card. It is closed after Close.
func (b *Board) Changes() <-chan State {
	return b.changes
}

// Period returns the active period.
func (b *Board) Period() api.Period {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.period
}

// SetPeriod switches every card to period. Responses still in flight for the
// previous period are discarded.
func (b *Board) SetPeriod(period api.Period) {
	b.mu.Lock()
	b.period = period
	b.mu.Unlock()
	for _, w := range b.watchers {
		w.Switch(api.CardQuery{Card: w.Query().Card, Period: period})
	}
}

// RefreshAll refetches every card at the active period.
func (b *Board) RefreshAll() {
	for _, w := range b.watchers {
		w.Refresh()
	}
}

// States returns the current state of every card, in board order.
func (b *Board) States() []State {
	states := make([]State, len(b.watchers))
	for i, w := range b.watchers {
		states[i] = w.Current()
	}
	return states
}

// Close stops every watcher.
func (b *Board) Close() {
	b.cancel()
	for _, w := range b.watchers {
		w.Close()
	}
}
