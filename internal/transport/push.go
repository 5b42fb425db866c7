package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/limits"
)

const (
	DefaultPongWait    = 60 * time.Second
	DefaultDialTimeout = 10 * time.Second

	writeWait = 10 * time.Second
)

var (
	// ErrConnectionLost is returned once the push channel closes. The
	// session does not reconnect.
	ErrConnectionLost = errors.New("connection lost")

	// ErrMalformedMessage marks a push message that cannot be applied.
	// Such messages are dropped.
	ErrMalformedMessage = errors.New("malformed message")
)

// Push message types
const (
	MessageClear = "clear"
	MessageLine  = "line"
)

// DeltaKind: what a push delta does to the keyed scene
type DeltaKind int

const (
	DeltaClear DeltaKind = iota + 1
	DeltaUpsert
)

// Delta is one decoded push message.
type Delta struct {
	Kind  DeltaKind
	ID    string
	Shape geometry.Primitive
}

// PushHandler receives push channel events, in order, on one goroutine.
type PushHandler interface {
	Open(ctx context.Context)
	Message(ctx context.Context, delta Delta)
	Close(ctx context.Context, err error)
}

// ObjectID accepts a JSON string or number.
type ObjectID string

func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ObjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("object id is neither string nor number: %w", err)
	}
	*id = ObjectID(n.String())
	return nil
}

type pushMessage struct {
	Type    string          `json:"type"`
	ID      ObjectID        `json:"id"`
	Content json.RawMessage `json:"content"`
}

// PushOptions configures a Listener
type PushOptions struct {
	ServerURL   string
	SceneID     string
	PongWait    time.Duration
	DialTimeout time.Duration
	Limits      *limits.Limits
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
}

// Listener receives scene deltas over a websocket.
type Listener struct {
	endpoint    string
	pongWait    time.Duration
	dialTimeout time.Duration
	limits      *limits.Limits
	dialer      *websocket.Dialer
	validator   *geometry.Validator
	logger      *slog.Logger
}

func NewListener(opts PushOptions) (*Listener, error) {
	endpoint, err := ListenURL(opts.ServerURL, opts.SceneID)
	if err != nil {
		return nil, err
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Limits == nil {
		opts.Limits = limits.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Listener{
		endpoint:    endpoint,
		pongWait:    opts.PongWait,
		dialTimeout: opts.DialTimeout,
		limits:      opts.Limits,
		dialer:      opts.Dialer,
		validator:   geometry.NewValidator(),
		logger:      opts.Logger.With("transport", "push", "scene", opts.SceneID),
	}, nil
}

// ListenURL derives the websocket endpoint of a scene from the server URL.
// http and https map to ws and wss.
func ListenURL(serverURL, sceneID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/" + url.PathEscape(sceneID) + "/listen"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Endpoint: websocket URL this listener dials
func (l *Listener) Endpoint() string {
	return l.endpoint
}

// Run dials the channel and delivers events to h until the connection
// closes or ctx is done. The result always wraps ErrConnectionLost unless
// ctx was cancelled.
func (l *Listener) Run(ctx context.Context, h PushHandler) error {
	dialCtx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	conn, _, err := l.dialer.DialContext(dialCtx, l.endpoint, nil)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fmt.Errorf("%w: dial %s: %w", ErrConnectionLost, l.endpoint, err)
		h.Close(ctx, err)
		return err
	}
	defer conn.Close()

	// Unblock the read loop when ctx ends
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	l.logger.InfoContext(ctx, "push channel open", "endpoint", l.endpoint)
	h.Open(ctx)

	err = l.readLoop(ctx, conn, h)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	h.Close(ctx, err)
	return err
}

// readLoop: message loop, returns the read error that ended it
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn, h PushHandler) error {
	pingPeriod := (l.pongWait * 9) / 10 // Send pings at 90% of pong deadline

	// Any ping or pong from the server extends the deadline
	conn.SetReadDeadline(time.Now().Add(l.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.pongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(l.pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return // Connection dead
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if !l.limits.ValidateMessageSize(len(msg)) {
			l.logger.DebugContext(ctx, "dropping oversized message", "bytes", len(msg))
			continue
		}

		delta, err := l.Decode(msg)
		if err != nil {
			l.logger.DebugContext(ctx, "dropping message", "error", err)
			continue
		}

		h.Message(ctx, delta)
	}
}

// Decode turns a raw push message into a Delta. Unknown message types and
// invalid payloads return ErrMalformedMessage. Fields other than type, id and
// content are ignored.
func (l *Listener) Decode(msg []byte) (Delta, error) {
	var m pushMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return Delta{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch m.Type {
	case MessageClear:
		return Delta{Kind: DeltaClear}, nil
	case MessageLine:
		id := string(m.ID)
		if err := l.validator.ValidateID(id); err != nil {
			return Delta{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		var generic any
		if err := json.Unmarshal(m.Content, &generic); err != nil {
			return Delta{}, fmt.Errorf("%w: line content: %w", ErrMalformedMessage, err)
		}
		if err := l.limits.ValidateContent(generic); err != nil {
			return Delta{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		var content geometry.LineContent
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return Delta{}, fmt.Errorf("%w: line content: %w", ErrMalformedMessage, err)
		}
		if err := l.validator.ValidateLineContent(content); err != nil {
			return Delta{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		return Delta{
			Kind:  DeltaUpsert,
			ID:    id,
			Shape: geometry.Line{From: *content.Begin, To: *content.End},
		}, nil
	default:
		return Delta{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
}
