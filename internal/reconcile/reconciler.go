package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/limits"
	"github.com/mattfrayser/scenesync/internal/notify"
	"github.com/mattfrayser/scenesync/internal/scene"
	"github.com/mattfrayser/scenesync/internal/store"
	"github.com/mattfrayser/scenesync/internal/transport"
)

// Renderer draws scene state. It must not mutate the scene.
type Renderer interface {
	// Redraw clears the surface and draws every keyed object.
	Redraw(cache *scene.Cache) error
	// Draw adds primitives on top of what is already drawn.
	Draw(prims ...geometry.Primitive) error
}

// Options: dependencies of a Reconciler
type Options struct {
	SceneID   string
	Snapshots *store.Snapshots
	Renderer  Renderer
	Notifier  notify.Notifier
	Limits    *limits.Limits
	Logger    *slog.Logger
}

// Reconciler applies transport deltas to the scene, persists push state and
// hands the result to the renderer. Storage and render failures stop here.
type Reconciler struct {
	sceneID   string
	cache     *scene.Cache
	snapshots *store.Snapshots
	renderer  Renderer
	notifier  notify.Notifier
	limits    *limits.Limits
	logger    *slog.Logger
	mu        sync.Mutex
}

var (
	_ transport.PollHandler = (*Reconciler)(nil)
	_ transport.PushHandler = (*Reconciler)(nil)
)

func New(opts Options) *Reconciler {
	if opts.Limits == nil {
		opts.Limits = limits.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(opts.Logger)
	}

	return &Reconciler{
		sceneID:   opts.SceneID,
		cache:     scene.New(),
		snapshots: opts.Snapshots,
		renderer:  opts.Renderer,
		notifier:  opts.Notifier,
		limits:    opts.Limits,
		logger:    opts.Logger.With("scene", opts.SceneID),
	}
}

// Scene: the cache this reconciler mutates
func (r *Reconciler) Scene() *scene.Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cache
}

// Restore loads the persisted snapshot into the scene. When none exists the
// empty scene is persisted right away to establish the key. The restored
// scene is rendered.
func (r *Reconciler) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshots != nil {
		cache, ok, err := r.snapshots.Load(ctx, r.sceneID)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logger.ErrorContext(ctx, "failed to load snapshot, starting empty", "error", err)
		case ok:
			r.cache = cache
			r.logger.InfoContext(ctx, "restored snapshot", "objects", cache.Len())
		default:
			r.persist(ctx)
		}
	}

	r.redraw(ctx)
	return nil
}

// Cursor: implements transport.PollHandler
func (r *Reconciler) Cursor() int64 {
	return r.Scene().CurrentCursor()
}

// ApplyPoll appends a poll batch to the draw log and draws only the new
// primitives. An empty batch changes nothing. Nothing is persisted.
func (r *Reconciler) ApplyPoll(ctx context.Context, batch transport.Batch) {
	if batch.Empty() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.AdvanceCursor(batch.LastTimestamp)
	for _, p := range batch.Primitives {
		r.cache.Append(p)
	}
	if len(batch.Primitives) == 0 {
		return
	}
	if err := r.renderer.Draw(batch.Primitives...); err != nil {
		r.logger.ErrorContext(ctx, "failed to draw poll batch", "error", err)
	}
}

// Open: a fresh push connection resets the scene; the server replays
// full state after connecting
func (r *Reconciler) Open(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Clear()
	r.persist(ctx)
	r.redraw(ctx)
}

// Message: implements transport.PushHandler
func (r *Reconciler) Message(ctx context.Context, delta transport.Delta) {
	r.ApplyPush(ctx, delta)
}

// Close: the push channel is gone for good
func (r *Reconciler) Close(ctx context.Context, err error) {
	r.logger.WarnContext(ctx, "push channel closed", "error", err)
	r.notifier.Notify(ctx, notify.ConnectionLost)
}

// ApplyPush applies one push delta, persists the keyed scene and redraws
// everything. Upserting the same object twice leaves the scene unchanged.
func (r *Reconciler) ApplyPush(ctx context.Context, delta transport.Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch delta.Kind {
	case transport.DeltaClear:
		r.cache.Clear()
	case transport.DeltaUpsert:
		if delta.Shape == nil {
			r.logger.DebugContext(ctx, "ignoring upsert without shape", "id", delta.ID)
			return
		}
		if _, exists := r.cache.Get(delta.ID); !exists && !r.limits.CanAddObject(r.cache) {
			r.logger.WarnContext(ctx, "scene is full, dropping object", "id", delta.ID, "objects", r.cache.Len())
			return
		}
		r.cache.Upsert(delta.ID, delta.Shape)
	default:
		r.logger.DebugContext(ctx, "ignoring delta", "kind", delta.Kind)
		return
	}

	r.persist(ctx)
	r.redraw(ctx)
}

// persist writes the keyed scene. A full store produces exactly one notice;
// the in-memory scene stays as it is.
func (r *Reconciler) persist(ctx context.Context) {
	if r.snapshots == nil {
		return
	}

	err := r.snapshots.Store(ctx, r.sceneID, r.cache)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrQuotaExceeded):
		r.logger.WarnContext(ctx, "snapshot not saved", "error", err)
		r.notifier.Notify(ctx, notify.QuotaExceeded)
	default:
		r.logger.ErrorContext(ctx, "failed to save snapshot", "error", err)
	}
}

func (r *Reconciler) redraw(ctx context.Context) {
	if err := r.renderer.Redraw(r.cache); err != nil {
		r.logger.ErrorContext(ctx, "failed to render scene", "error", err)
	}
}
