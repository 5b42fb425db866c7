package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gg"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattfrayser/scenesync/internal/config"
	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/notify"
	"github.com/mattfrayser/scenesync/internal/scene"
	"github.com/mattfrayser/scenesync/internal/store"
	"github.com/mattfrayser/scenesync/internal/transport"
)

// countingSurface is a real gg surface that also records strokes and clears.
type countingSurface struct {
	*gg.Context
	mu  sync.Mutex
	ops []string
}

func newCountingSurface() *countingSurface {
	return &countingSurface{Context: gg.NewContext(100, 100)}
}

func (s *countingSurface) Stroke() error {
	s.record("stroke")
	return s.Context.Stroke()
}

func (s *countingSurface) ClearWithColor(c gg.RGBA) {
	s.record("clear")
	s.Context.ClearWithColor(c)
}

func (s *countingSurface) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *countingSurface) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *countingSurface) Count(op string) int {
	n := 0
	for _, o := range s.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(serverURL, transportName string) config.Config {
	cfg := config.Default()
	cfg.ServerURL = serverURL
	cfg.Transport = transportName
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Width, cfg.Height = 100, 100
	return cfg
}

func TestNew_RejectsBadInput(t *testing.T) {
	cfg := testConfig("http://localhost", config.TransportPoll)
	deps := Deps{Storage: store.NewMemory(0), Surface: newCountingSurface(), Logger: quietLogger()}

	_, err := New(cfg, "../etc", deps)
	assert.ErrorIs(t, err, ErrInvalidSceneID)

	_, err = New(cfg, "XVlBzg", Deps{Surface: newCountingSurface()})
	assert.Error(t, err)

	cfg.Transport = "smoke-signals"
	_, err = New(cfg, "XVlBzg", deps)
	assert.Error(t, err)
}

func TestNew_AssignsSessionID(t *testing.T) {
	cfg := testConfig("http://localhost", config.TransportPoll)
	deps := Deps{Storage: store.NewMemory(0), Surface: newCountingSurface(), Logger: quietLogger()}

	a, err := New(cfg, "XVlBzg", deps)
	require.NoError(t, err)
	b, err := New(cfg, "XVlBzg", deps)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "XVlBzg", a.SceneID())
}

// A first poll delivers one line at timestamp 5; every later poll is empty.
func TestSession_PollEndToEnd(t *testing.T) {
	var (
		mu     sync.Mutex
		afters []int64
	)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transport.PollRequest
		json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		afters = append(afters, int64(req.AfterTimestamp))
		mu.Unlock()
		requests.Add(1)

		if req.AfterTimestamp == 0 {
			w.Write([]byte(`{"drawings":[{"line":{"from":{"x":0,"y":0},"to":{"x":1,"y":1}}}],"lastTimestamp":5}`))
			return
		}
		w.Write([]byte(`{"drawings":[],"lastTimestamp":0}`))
	}))
	defer srv.Close()

	surface := newCountingSurface()
	storage := store.NewMemory(0)
	s, err := New(testConfig(srv.URL, config.TransportPoll), "XVlBzg", Deps{
		Storage: storage,
		Surface: surface,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return requests.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, int64(0), afters[0])
	for _, after := range afters[1:] {
		assert.Equal(t, int64(5), after)
	}
	mu.Unlock()

	assert.Equal(t, 1, surface.Count("stroke"), "exactly one line drawn")
	assert.Equal(t, int64(5), s.Scene().CurrentCursor())
	assert.Equal(t, 1, s.Scene().LogLen())
	assert.Equal(t, int64(1), s.Drawn())

	_, ok, err := storage.Get(context.Background(), store.Key("XVlBzg"))
	require.NoError(t, err)
	assert.False(t, ok, "poll sessions do not persist")
}

func TestSession_PollRunsUntilDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drawings":[],"lastTimestamp":0}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, config.TransportPoll)
	cfg.PollInterval = time.Hour
	s, err := New(cfg, "XVlBzg", Deps{
		Storage: store.NewMemory(0),
		Surface: newCountingSurface(),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	const deadline = 200 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, time.Since(start), deadline)
}

func pushServer(frames ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/XVlBzg/listen" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}))
}

func TestSession_PushEndToEnd(t *testing.T) {
	srv := pushServer(
		`{"type":"line","id":"a","content":{"begin":{"x":0,"y":0},"end":{"x":1,"y":0}}}`,
		`{"type":"clear"}`,
	)
	defer srv.Close()

	surface := newCountingSurface()
	storage := store.NewMemory(0)
	notices := &notify.Recorder{}
	s, err := New(testConfig(srv.URL, config.TransportPush), "XVlBzg", Deps{
		Storage:  storage,
		Surface:  surface,
		Notifier: notices,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrConnectionLost)

	assert.Equal(t, 0, s.Scene().Len())

	ops := surface.Ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, "clear", ops[len(ops)-1], "surface ends cleared")
	assert.Equal(t, 1, surface.Count("stroke"), "the line was drawn once before the clear")

	raw, ok, err := storage.Get(context.Background(), store.Key("XVlBzg"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "{}", string(raw))

	assert.Equal(t, []notify.Kind{notify.ConnectionLost}, notices.Kinds())
}

func TestSession_PushOpenResetsRestoredScene(t *testing.T) {
	srv := pushServer(
		`{"type":"line","id":"b","content":{"begin":{"x":0,"y":0},"end":{"x":0,"y":1}}}`,
	)
	defer srv.Close()

	storage := store.NewMemory(0)
	previous := scene.New()
	previous.Upsert("a", geometry.Line{From: geometry.Point{X: 0, Y: 0}, To: geometry.Point{X: 1, Y: 0}})
	require.NoError(t, store.NewSnapshots(storage).Store(context.Background(), "XVlBzg", previous))

	s, err := New(testConfig(srv.URL, config.TransportPush), "XVlBzg", Deps{
		Storage:  storage,
		Surface:  newCountingSurface(),
		Notifier: &notify.Recorder{},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Run(context.Background()), transport.ErrConnectionLost)

	objects := s.Scene().Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, "b", objects[0].ID)

	loaded, ok, err := store.NewSnapshots(storage).Load(context.Background(), "XVlBzg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, objects, loaded.Objects())
}

func TestSession_PushQuotaExceededKeepsScene(t *testing.T) {
	srv := pushServer(
		`{"type":"line","id":"a","content":{"begin":{"x":0,"y":0},"end":{"x":1,"y":0}}}`,
		`{"type":"line","id":"b","content":{"begin":{"x":0,"y":0},"end":{"x":0,"y":1}}}`,
	)
	defer srv.Close()

	notices := &notify.Recorder{}
	s, err := New(testConfig(srv.URL, config.TransportPush), "XVlBzg", Deps{
		Storage:  store.NewMemory(120),
		Surface:  newCountingSurface(),
		Notifier: notices,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Run(context.Background()), transport.ErrConnectionLost)

	assert.Equal(t, 2, s.Scene().Len())
	assert.Equal(t, 1, notices.Count(notify.QuotaExceeded))
	assert.Equal(t, 1, notices.Count(notify.ConnectionLost))
}

func TestSession_PushUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	notices := &notify.Recorder{}
	s, err := New(testConfig(srv.URL, config.TransportPush), "XVlBzg", Deps{
		Storage:  store.NewMemory(0),
		Surface:  newCountingSurface(),
		Notifier: notices,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Run(context.Background()), transport.ErrConnectionLost)
	assert.Equal(t, 1, notices.Count(notify.ConnectionLost))
}

func TestOpenStorage(t *testing.T) {
	cfg := config.Default()

	mem, err := OpenStorage(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, mem)

	cfg.StorePath = t.TempDir() + "/scenes.db"
	db, err := OpenStorage(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.IsType(t, &store.SQLite{}, db)
}
