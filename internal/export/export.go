// Package export downloads the spreadsheet behind a card and saves it under a
// derived filename. At most one export per card query runs at a time.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
)

// ErrInProgress is returned when an export for the same query is already running.
var ErrInProgress = errors.New("export already in progress")

// JobState is the lifecycle of an export job.
type JobState int

const (
	Idle JobState = iota
	Exporting
)

func (s JobState) String() string {
	if s == Exporting {
		return "exporting"
	}
	return "idle"
}

// Fetcher retrieves the binary extract. *api.Client implements it.
type Fetcher interface {
	FetchExport(ctx context.Context, q api.CardQuery) (api.Download, error)
}

// Saver stores a finished download and returns where it went.
type Saver interface {
	Save(filename string, data []byte) (string, error)
}

// Error is a failed export.
type Error struct {
	Query api.CardQuery
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %s", e.Query.Card, api.UserMessage(e.Err))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result describes a saved export.
type Result struct {
	Query    api.CardQuery
	Filename string
	Path     string
	Size     int
	Elapsed  time.Duration
}

// Pipeline runs exports.
type Pipeline struct {
	fetcher Fetcher
	saver   Saver
	logger  zerolog.Logger

	mu       sync.Mutex
	jobs     map[api.CardQuery]JobState
	onChange func(api.CardQuery, JobState)
}

// NewPipeline builds a Pipeline that saves through saver.
func NewPipeline(fetcher Fetcher, saver Saver, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		saver:   saver,
		logger:  logger.With().Str("component", "export").Logger(),
		jobs:    map[api.CardQuery]JobState{},
	}
}

// OnChange registers fn to be called on every job transition.
func (p *Pipeline) OnChange(fn func(api.CardQuery, JobState)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// State reports the job state for q.
func (p *Pipeline) State(q api.CardQuery) JobState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs[q]
}

// Export fetches and saves the extract for q. While a previous export of the
// same query is running it returns ErrInProgress without contacting the
// backend. Exports of different queries run independently.
func (p *Pipeline) Export(ctx context.Context, q api.CardQuery) (Result, error) {
	if !p.begin(q) {
		p.logger.Debug().Str("query", q.String()).Msg("export already running, ignoring trigger")
		return Result{}, ErrInProgress
	}
	defer p.finish(q)

	start := time.Now()
	download, err := p.fetcher.FetchExport(ctx, q)
	if err != nil {
		p.logger.Warn().Err(err).Str("query", q.String()).Msg("export failed")
		return Result{}, &Error{Query: q, Err: err}
	}

	name := Filename(q, download.Disposition)
	path, err := p.saver.Save(name, download.Data)
	if err != nil {
		p.logger.Error().Err(err).Str("filename", name).Msg("save export failed")
		return Result{}, &Error{Query: q, Err: err}
	}

	res := Result{
		Query:    q,
		Filename: name,
		Path:     path,
		Size:     len(download.Data),
		Elapsed:  time.Since(start),
	}
	p.logger.Info().
		Str("query", q.String()).
		Str("path", path).
		Int("bytes", res.Size).
		Dur("elapsed", res.Elapsed).
		Msg("export saved")
	return res, nil
}

func (p *Pipeline) begin(q api.CardQuery) bool {
	p.mu.Lock()
	if p.jobs[q] == Exporting {
		p.mu.Unlock()
		return false
	}
	p.jobs[q] = Exporting
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(q, Exporting)
	}
	return true
}

func (p *Pipeline) finish(q api.CardQuery) {
	p.mu.Lock()
	delete(p.jobs, q)
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(q, Idle)
	}
}
