package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/callingitnow/callit/internal/auth"
	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/config"
	"github.com/callingitnow/callit/internal/display"
	"github.com/callingitnow/callit/internal/entity"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/optimistic"
	"github.com/callingitnow/callit/internal/session"
	"github.com/callingitnow/callit/internal/store"
	"github.com/callingitnow/callit/internal/store/sqlite"
	"github.com/callingitnow/callit/internal/thread"
)

// app holds the dependencies shared by every command. open builds them once
// per invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	reader *bufio.Reader

	verbose bool
	opened  bool

	home    string
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	api     *client.Client
	session *session.Manager
	engine  *optimistic.Engine
	filter  display.Filter
	now     func() time.Time
}

func newApp(out, errOut io.Writer, in io.Reader) *app {
	return &app{out: out, errOut: errOut, in: in, now: time.Now}
}

func (a *app) open(ctx context.Context) error {
	if a.opened {
		return nil
	}
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}
	a.home = config.Dir()
	cfg, err := config.Load(a.home)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening state db: %w", err)
	}
	a.store = st

	sealer, err := auth.LoadOrCreateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	a.api = client.New(cfg.APIURL)
	a.api.HTTPClient.Timeout = cfg.Timeout
	a.api.Logger = a.logger

	a.session = session.New(a.api, st, sealer,
		session.WithLogger(a.logger),
		session.WithProfile(cfg.Profile),
		session.OnExpired(func() {
			fmt.Fprintln(a.errOut, "Session expired. Run `callit login` to sign in again.")
		}),
	)
	if err := a.session.Restore(ctx); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	entities, err := entity.New[model.Prediction](entity.DefaultSize)
	if err != nil {
		return err
	}
	a.engine = optimistic.New(a.api, a.session,
		optimistic.WithLogger(a.logger),
		optimistic.WithEntities(entities),
	)

	a.filter = display.Filter{ShowProfanity: cfg.ShowProfanity}
	if v, err := st.GetSetting(ctx, store.SettingShowProfanity); err == nil {
		if b, perr := strconv.ParseBool(v); perr == nil {
			a.filter.ShowProfanity = b
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	a.opened = true
	return nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *app) requireSignIn() error {
	if !a.session.SignedIn() {
		return errors.New("not signed in; run `callit login` first")
	}
	return nil
}

func (a *app) viewerID() int64 {
	if u, ok := a.session.CurrentUser(); ok {
		return u.ID
	}
	return 0
}

func (a *app) threadView(predictionID int64, sort model.CommentSort) *thread.View {
	return thread.New(predictionID, a.api, a.engine, a.session,
		thread.WithDrafts(a.store),
		thread.WithLogger(a.logger),
		thread.WithSort(sort),
	)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
