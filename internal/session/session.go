package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mattfrayser/scenesync/internal/config"
	"github.com/mattfrayser/scenesync/internal/limits"
	"github.com/mattfrayser/scenesync/internal/notify"
	"github.com/mattfrayser/scenesync/internal/reconcile"
	"github.com/mattfrayser/scenesync/internal/render"
	"github.com/mattfrayser/scenesync/internal/scene"
	"github.com/mattfrayser/scenesync/internal/store"
	"github.com/mattfrayser/scenesync/internal/transport"
)

// Deps: capabilities a session is built from. Storage and Surface are
// required; the rest fall back to defaults.
type Deps struct {
	Storage    store.Storage
	Surface    render.Surface
	Notifier   notify.Notifier
	Sink       render.FrameSink
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Session owns everything needed to keep one scene in sync: one transport,
// one scene cache, the reconciler and the renderer.
type Session struct {
	id         uuid.UUID
	sceneID    string
	transport  string
	reconciler *reconcile.Reconciler
	renderer   *render.Renderer
	poller     *transport.Poller
	listener   *transport.Listener
	logger     *slog.Logger
}

// New wires a session for sceneID from cfg.
func New(cfg config.Config, sceneID string, deps Deps) (*Session, error) {
	sceneID, err := ValidateSceneID(sceneID)
	if err != nil {
		return nil, err
	}
	if deps.Storage == nil {
		return nil, errors.New("session requires a storage")
	}
	if deps.Surface == nil {
		return nil, errors.New("session requires a surface")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	logger := deps.Logger.With("session", id.String())
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog(logger)
	}

	palette, err := render.NewPalette(cfg.Palette, cfg.StrokeColor)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(deps.Surface, render.Options{
		LineWidth:  cfg.LineWidth,
		Background: cfg.Background,
		Palette:    palette,
		Sink:       deps.Sink,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	lim := limits.New(cfg.MaxMessageSize, cfg.MaxObjects, limits.DefaultMaxObjectDepth, limits.DefaultMaxObjectElements)

	s := &Session{
		id:        id,
		sceneID:   sceneID,
		transport: cfg.Transport,
		renderer:  renderer,
		logger:    logger,
		reconciler: reconcile.New(reconcile.Options{
			SceneID:   sceneID,
			Snapshots: store.NewSnapshots(deps.Storage),
			Renderer:  renderer,
			Notifier:  deps.Notifier,
			Limits:    lim,
			Logger:    logger,
		}),
	}

	switch cfg.Transport {
	case config.TransportPoll:
		s.poller = transport.NewPoller(transport.PollOptions{
			ServerURL:     cfg.ServerURL,
			SceneID:       sceneID,
			Authenticator: cfg.Authenticator,
			Interval:      cfg.PollInterval,
			Timeout:       cfg.PollTimeout,
			Client:        deps.HTTPClient,
			Logger:        logger,
		})
	case config.TransportPush:
		s.listener, err = transport.NewListener(transport.PushOptions{
			ServerURL: cfg.ServerURL,
			SceneID:   sceneID,
			PongWait:  cfg.PongWait,
			Limits:    lim,
			Dialer:    deps.Dialer,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	return s, nil
}

// ID: unique id of this session, attached to every log line
func (s *Session) ID() string { return s.id.String() }

// SceneID: the scene this session follows
func (s *Session) SceneID() string { return s.sceneID }

// Scene returns the reconciled scene. Callers must treat it as read-only.
func (s *Session) Scene() *scene.Cache { return s.reconciler.Scene() }

// Renderer: the renderer drawing this session's surface
func (s *Session) Renderer() *render.Renderer { return s.renderer }

// Drawn: primitives delivered by polling, zero for push sessions
func (s *Session) Drawn() int64 {
	if s.poller == nil {
		return 0
	}
	return s.poller.Drawn()
}

// Run drives the transport. Polling runs until ctx is done and returns nil.
// A push session restores the persisted scene first and returns an error
// wrapping transport.ErrConnectionLost once the channel closes; there is
// no reconnect.
func (s *Session) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "session started", "scene", s.sceneID, "transport", s.transport)
	defer s.logger.InfoContext(ctx, "session stopped", "scene", s.sceneID)

	var err error
	if s.poller != nil {
		err = s.poller.Run(ctx, s.reconciler)
	} else {
		if err := s.reconciler.Restore(ctx); err != nil {
			return err
		}
		err = s.listener.Run(ctx, s.reconciler)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// OpenStorage opens the configured snapshot store: sqlite when a path is
// set, memory otherwise.
func OpenStorage(cfg config.Config) (store.Storage, error) {
	if cfg.StorePath == "" {
		return store.NewMemory(cfg.StoreQuotaBytes), nil
	}
	db, err := store.OpenSQLite(cfg.StorePath, cfg.StoreQuotaBytes)
	if err != nil {
		return nil, err
	}
	return db, nil
}
