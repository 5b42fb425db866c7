package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/limits"
	"github.com/mattfrayser/scenesync/internal/notify"
	"github.com/mattfrayser/scenesync/internal/scene"
	"github.com/mattfrayser/scenesync/internal/store"
	"github.com/mattfrayser/scenesync/internal/transport"
)

// fakeRenderer records render calls without drawing.
type fakeRenderer struct {
	redraws [][]geometry.DrawingObject
	draws   [][]geometry.Primitive
}

func (f *fakeRenderer) Redraw(c *scene.Cache) error {
	f.redraws = append(f.redraws, c.Objects())
	return nil
}

func (f *fakeRenderer) Draw(prims ...geometry.Primitive) error {
	f.draws = append(f.draws, prims)
	return nil
}

type fixture struct {
	rec      *Reconciler
	storage  *store.Memory
	renderer *fakeRenderer
	notices  *notify.Recorder
}

func newFixture(t *testing.T, quota int) *fixture {
	t.Helper()

	f := &fixture{
		storage:  store.NewMemory(quota),
		renderer: &fakeRenderer{},
		notices:  &notify.Recorder{},
	}
	f.rec = New(Options{
		SceneID:   "XVlBzg",
		Snapshots: store.NewSnapshots(f.storage),
		Renderer:  f.renderer,
		Notifier:  f.notices,
	})
	return f
}

func (f *fixture) persisted(t *testing.T) string {
	t.Helper()

	raw, ok, err := f.storage.Get(context.Background(), store.Key("XVlBzg"))
	require.NoError(t, err)
	require.True(t, ok)
	return string(raw)
}

func lineDelta(id string, x2, y2 float64) transport.Delta {
	return transport.Delta{
		Kind:  transport.DeltaUpsert,
		ID:    id,
		Shape: geometry.Line{From: geometry.Point{X: 0, Y: 0}, To: geometry.Point{X: x2, Y: y2}},
	}
}

func TestRestore_AbsentSnapshotIsCreated(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.rec.Restore(context.Background()))

	assert.Equal(t, "{}", f.persisted(t))
	assert.Len(t, f.renderer.redraws, 1)
}

func TestRestore_LoadsExistingSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	previous := scene.New()
	previous.Upsert("a", geometry.Circle{Center: geometry.Point{X: 0, Y: 0}, Radius: 0.5})
	require.NoError(t, store.NewSnapshots(f.storage).Store(ctx, "XVlBzg", previous))

	require.NoError(t, f.rec.Restore(ctx))

	assert.Equal(t, previous.Objects(), f.rec.Scene().Objects())
	require.Len(t, f.renderer.redraws, 1)
	assert.Equal(t, previous.Objects(), f.renderer.redraws[0])
}

func TestApplyPush_UpsertTwiceIsIdempotent(t *testing.T) {
	once := newFixture(t, 0)
	once.rec.ApplyPush(context.Background(), lineDelta("a", 1, 0))

	twice := newFixture(t, 0)
	twice.rec.ApplyPush(context.Background(), lineDelta("a", 1, 0))
	twice.rec.ApplyPush(context.Background(), lineDelta("a", 1, 0))

	assert.Equal(t, once.rec.Scene().Objects(), twice.rec.Scene().Objects())
	assert.Equal(t, once.persisted(t), twice.persisted(t))
	assert.Equal(t, 1, twice.rec.Scene().Len())
}

func TestApplyPush_ClearEmptiesSceneAndSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.rec.ApplyPush(ctx, lineDelta("a", 1, 0))
	f.rec.ApplyPush(ctx, lineDelta("b", 0, 1))
	f.rec.ApplyPush(ctx, transport.Delta{Kind: transport.DeltaClear})

	assert.Equal(t, 0, f.rec.Scene().Len())
	assert.Equal(t, "{}", f.persisted(t))

	require.Len(t, f.renderer.redraws, 3)
	assert.Empty(t, f.renderer.redraws[2], "clear must redraw an empty surface")
}

func TestApplyPush_EveryChangeRedrawsWholeScene(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.rec.ApplyPush(ctx, lineDelta("a", 1, 0))
	f.rec.ApplyPush(ctx, lineDelta("b", 0, 1))

	require.Len(t, f.renderer.redraws, 2)
	assert.Len(t, f.renderer.redraws[1], 2)
	assert.Empty(t, f.renderer.draws)
}

func TestApplyPush_QuotaExceededKeepsSceneAndNotifiesOncePerWrite(t *testing.T) {
	// Room for the first object only
	f := newFixture(t, 120)
	ctx := context.Background()

	f.rec.ApplyPush(ctx, lineDelta("a", 1, 0))
	require.Empty(t, f.notices.Kinds())
	stored := f.persisted(t)

	f.rec.ApplyPush(ctx, lineDelta("b", 0, 1))
	f.rec.ApplyPush(ctx, lineDelta("c", 1, 1))

	assert.Equal(t, 3, f.rec.Scene().Len(), "in-memory scene stays authoritative")
	assert.Equal(t, 2, f.notices.Count(notify.QuotaExceeded))
	assert.Equal(t, stored, f.persisted(t))
	assert.Len(t, f.renderer.redraws, 3)
}

func TestApplyPush_SceneLimit(t *testing.T) {
	f := newFixture(t, 0)
	f.rec.limits = limits.New(0, 1, 0, 0)
	ctx := context.Background()

	f.rec.ApplyPush(ctx, lineDelta("a", 1, 0))
	f.rec.ApplyPush(ctx, lineDelta("b", 0, 1))
	f.rec.ApplyPush(ctx, lineDelta("a", -1, 0))

	objects := f.rec.Scene().Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, lineDelta("a", -1, 0).Shape, objects[0].Shape)
}

func TestOpen_ResetsAndPersists(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.rec.ApplyPush(ctx, lineDelta("a", 1, 0))
	f.rec.Open(ctx)

	assert.Equal(t, 0, f.rec.Scene().Len())
	assert.Equal(t, "{}", f.persisted(t))
}

func TestClose_NotifiesConnectionLost(t *testing.T) {
	f := newFixture(t, 0)

	f.rec.Close(context.Background(), transport.ErrConnectionLost)

	assert.Equal(t, []notify.Kind{notify.ConnectionLost}, f.notices.Kinds())
}

func TestApplyPoll_CursorLaw(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	line := geometry.Line{From: geometry.Point{X: 0, Y: 0}, To: geometry.Point{X: 1, Y: 1}}

	f.rec.ApplyPoll(ctx, transport.Batch{Primitives: []geometry.Primitive{line}, LastTimestamp: 5, Received: 1})
	assert.Equal(t, int64(5), f.rec.Cursor())

	f.rec.ApplyPoll(ctx, transport.Batch{LastTimestamp: 0})
	assert.Equal(t, int64(5), f.rec.Cursor())

	require.Len(t, f.renderer.draws, 1, "empty batch must not draw")
	assert.Equal(t, []geometry.Primitive{line}, f.renderer.draws[0])
	assert.Empty(t, f.renderer.redraws)

	_, ok, err := f.storage.Get(ctx, store.Key("XVlBzg"))
	require.NoError(t, err)
	assert.False(t, ok, "poll state is never persisted")
}

func TestApplyPoll_ReplayDrawsTwice(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	batch := transport.Batch{
		Primitives:    []geometry.Primitive{geometry.Circle{Center: geometry.Point{X: 0, Y: 0}, Radius: 0.1}},
		LastTimestamp: 3,
		Received:      1,
	}

	f.rec.ApplyPoll(ctx, batch)
	f.rec.ApplyPoll(ctx, batch)

	assert.Equal(t, 2, f.rec.Scene().LogLen())
	assert.Len(t, f.renderer.draws, 2)
	assert.Equal(t, int64(3), f.rec.Cursor())
}

func TestApplyPoll_SkippedDrawingsStillAdvanceCursor(t *testing.T) {
	f := newFixture(t, 0)

	f.rec.ApplyPoll(context.Background(), transport.Batch{LastTimestamp: 8, Received: 1})

	assert.Equal(t, int64(8), f.rec.Cursor())
	assert.Empty(t, f.renderer.draws)
}

func TestPersistedSnapshotShape(t *testing.T) {
	f := newFixture(t, 0)
	f.rec.ApplyPush(context.Background(), lineDelta("a", 1, 0))

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.persisted(t)), &decoded))
	assert.Equal(t, "line", decoded["a"]["type"])
	assert.Equal(t, "a", decoded["a"]["id"])
}
