package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
	"github.com/five82/metricdeck/internal/export"
	"github.com/five82/metricdeck/internal/prefs"
	"github.com/five82/metricdeck/internal/preview"
	"github.com/five82/metricdeck/internal/session"
	"github.com/five82/metricdeck/internal/state"
	"github.com/five82/metricdeck/internal/storage"
	"github.com/five82/metricdeck/internal/ui"
)

// Version is reported in the User-Agent header.
var Version = "dev"

// App holds the wired components.
type App struct {
	Config  config.Config
	Logger  zerolog.Logger
	Storage storage.Storage
	Session *session.Store
	Client  *api.Client
	Cards   *card.Service
	Exports *export.Pipeline
	State   *state.Store

	// PrefsPath is where the TUI keeps its theme and last period.
	PrefsPath string
}

// New wires storage, session, API client and the card services from cfg. The
// persisted session, if any, is restored.
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	st, err := storage.Open(cfg.Storage, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	sess := session.NewStore(st, nil, logger)
	client, err := api.NewClient(sess, api.Options{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "metricdeck/" + Version,
		Logger:    logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}
	sess.SetAuthenticator(client)

	// Periods belong to the signed-in user.
	dash := &state.Store{}
	sess.OnChange(func(s session.Session) {
		if s.Status == session.Unauthenticated {
			dash.Reset()
		}
	})

	if restored, ok := sess.Restore(); ok {
		logger.Info().Str("email", restored.User.Email).Msg("session restored")
	}

	exports := export.NewPipeline(client, export.NewFileSaver(cfg.DownloadDir), logger)
	exports.OnChange(func(q api.CardQuery, js export.JobState) {
		logger.Debug().Str("query", q.String()).Stringer("job", js).Msg("export job")
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Storage: st,
		Session: sess,
		Client:  client,
		Cards:   card.NewService(client, cfg.RequestTimeout, logger),
		Exports: exports,
		State:   dash,

		PrefsPath: prefs.DefaultPath(),
	}, nil
}

// NewPreview returns a preview controller using the configured column order.
func (a *App) NewPreview() *preview.Controller {
	return preview.NewController(a.Client, a.Config.PreviewColumns, a.Logger)
}

// RequireSession fails with session.ErrNotAuthenticated when nobody is logged in.
func (a *App) RequireSession() error {
	if a.Session.Status() != session.Authenticated {
		return fmt.Errorf("%w: run `metricdeck login` first", session.ErrNotAuthenticated)
	}
	return nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.Storage == nil {
		return nil
	}
	return a.Storage.Close()
}

// Run boots the TUI until the context is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	// The poller's first pass loads the periods of a restored session.
	StartPoller(ctx, a.State, a.Client, a.Session, signInSignal(a.Session), a.Config.RefreshInterval, a.Logger)

	p, _ := prefs.Load(a.PrefsPath)

	err := ui.Run(ui.Options{
		Context:   ctx,
		Config:    a.Config,
		Session:   a.Session,
		Cards:     a.Cards,
		Exports:   a.Exports,
		Preview:   a.NewPreview(),
		Store:     a.State,
		Logger:    a.Logger,
		PollTick:  a.Config.RefreshInterval,
		ThemeName: p.Theme,
		Period:    p.Period,
		PrefsPath: a.PrefsPath,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
