package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
)

// PageSize is the number of rows shown per page.
const PageSize = 50

// Fetcher retrieves the raw preview body. *api.Client implements it.
type Fetcher interface {
	FetchPreview(ctx context.Context, q api.CardQuery) (json.RawMessage, error)
}

// Error is a failed preview load.
type Error struct {
	Query api.CardQuery
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("preview %s: %s", e.Query.Card, api.UserMessage(e.Err))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TotalPages is ceil(rows/PageSize).
func TotalPages(rows int) int {
	if rows <= 0 {
		return 0
	}
	return (rows + PageSize - 1) / PageSize
}

// Controller holds the preview of one card and its current page.
type Controller struct {
	fetcher Fetcher
	order   []string
	logger  zerolog.Logger

	mu      sync.RWMutex
	query   api.CardQuery
	dataset Dataset
	page    int
	loading bool
	err     error
	gen     uint64
}

// NewController builds a Controller. order is the canonical column order for
// legacy payloads; nil uses DefaultColumnOrder.
func NewController(fetcher Fetcher, order []string, logger zerolog.Logger) *Controller {
	if len(order) == 0 {
		order = DefaultColumnOrder
	}
	return &Controller{
		fetcher: fetcher,
		order:   append([]string(nil), order...),
		logger:  logger.With().Str("component", "preview").Logger(),
		page:    1,
	}
}

// LoadPreview fetches and normalizes the preview for q, replacing the current
// dataset and resetting to page 1. When a newer load starts before this one
// finishes, this result is returned to the caller but not kept.
func (c *Controller) LoadPreview(ctx context.Context, q api.CardQuery) (Dataset, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.query = q
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	raw, err := c.fetcher.FetchPreview(ctx, q)
	var ds Dataset
	if err == nil {
		ds, err = Normalize(raw, c.order)
	}
	if err != nil {
		err = &Error{Query: q, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug().Str("query", q.String()).Msg("discarding superseded preview")
		return ds, err
	}
	c.loading = false
	c.page = 1
	if err != nil {
		c.dataset = Dataset{}
		c.err = err
		c.logger.Warn().Err(err).Str("query", q.String()).Msg("preview failed")
		return Dataset{}, err
	}
	c.dataset = ds
	c.logger.Debug().
		Str("query", q.String()).
		Int("rows", ds.Len()).
		Int("columns", len(ds.Columns)).
		Msg("preview loaded")
	return ds, nil
}

// SetPage moves to page n, clamped to [1, TotalPages].
func (c *Controller) SetPage(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := TotalPages(c.dataset.Len())
	if n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	c.page = n
}

// NextPage advances one page, stopping at the last.
func (c *Controller) NextPage() {
	c.SetPage(c.Page() + 1)
}

// PrevPage goes back one page, stopping at the first.
func (c *Controller) PrevPage() {
	c.SetPage(c.Page() - 1)
}

// Page is the current 1-based page.
func (c *Controller) Page() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page
}

// TotalPages is the page count of the current dataset.
func (c *Controller) TotalPages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return TotalPages(c.dataset.Len())
}

// VisibleRows returns the rows of the current page.
func (c *Controller) VisibleRows() [][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := (c.page - 1) * PageSize
	if start >= len(c.dataset.Rows) {
		return nil
	}
	end := min(start+PageSize, len(c.dataset.Rows))
	return c.dataset.Rows[start:end]
}

// Dataset returns the current dataset.
func (c *Controller) Dataset() Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataset
}

// Query returns the query of the latest load.
func (c *Controller) Query() api.CardQuery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

// Loading reports whether a load is in flight.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the error of the latest load, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}
