package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/limits"
)

const (
	// PollPath is appended to the server URL for every poll request.
	PollPath = "/api/v1/poll"

	// PollPageSize is the most drawings the server returns per response.
	// A full page means more are waiting.
	PollPageSize = 32

	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 5 * time.Second

	maxPollResponseSize = 4 * 1024 * 1024
)

// ErrTransport marks a failed poll round trip. It is never fatal.
var ErrTransport = errors.New("transport error")

// Timestamp is an int64 that decodes from a JSON number or a decimal string.
type Timestamp int64

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	*ts = Timestamp(v)
	return nil
}

// PollRequest is the body of a poll call.
type PollRequest struct {
	SceneID        string    `json:"sceneId"`
	Authenticator  string    `json:"authenticator"`
	AfterTimestamp Timestamp `json:"afterTimestamp"`
}

// PollResponse is the decoded reply of a poll call.
type PollResponse struct {
	Drawings      []geometry.Drawing `json:"drawings"`
	LastTimestamp Timestamp          `json:"lastTimestamp"`
}

// Batch: one poll response converted to primitives
type Batch struct {
	Primitives    []geometry.Primitive
	LastTimestamp int64
	// Received counts drawings in the response, including skipped ones
	Received int
}

// Empty reports whether the server had nothing new.
func (b Batch) Empty() bool { return b.Received == 0 }

// PollHandler consumes poll batches. Cursor is read before every request.
type PollHandler interface {
	Cursor() int64
	ApplyPoll(ctx context.Context, batch Batch)
}

// PollOptions configures a Poller
type PollOptions struct {
	ServerURL     string
	SceneID       string
	Authenticator string
	Interval      time.Duration
	Timeout       time.Duration
	Client        *http.Client
	Logger        *slog.Logger
}

// Poller fetches scene updates with cursor based polling. Requests never
// overlap: the next one starts after the previous completed or timed out.
type Poller struct {
	endpoint      string
	sceneID       string
	authenticator string
	timeout       time.Duration
	client        *http.Client
	pacer         *limits.Pacer
	validator     *geometry.Validator
	logger        *slog.Logger
	drawn         atomic.Int64
}

func NewPoller(opts PollOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollTimeout
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Poller{
		endpoint:      strings.TrimRight(opts.ServerURL, "/") + PollPath,
		sceneID:       opts.SceneID,
		authenticator: opts.Authenticator,
		timeout:       opts.Timeout,
		client:        opts.Client,
		pacer:         limits.NewPacer(opts.Interval),
		validator:     geometry.NewValidator(),
		logger:        opts.Logger.With("transport", "poll", "scene", opts.SceneID),
	}
}

// Drawn: number of primitives delivered so far
func (p *Poller) Drawn() int64 {
	return p.drawn.Load()
}

// Run polls until ctx is done and returns ctx.Err(). Failed polls are
// logged and retried on the next tick. A full page is followed by an
// immediate poll so a lagging client catches up.
func (p *Poller) Run(ctx context.Context, h PollHandler) error {
	catchUp := false
	for {
		if !catchUp {
			if err := p.pacer.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.Poll(ctx, h.Cursor())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WarnContext(ctx, "poll failed", "error", err)
			catchUp = false
			continue
		}

		h.ApplyPoll(ctx, batch)
		catchUp = batch.Received >= PollPageSize
	}
}

// Poll performs one request for updates after the given cursor.
func (p *Poller) Poll(ctx context.Context, after int64) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(PollRequest{
		SceneID:        p.sceneID,
		Authenticator:  p.authenticator,
		AfterTimestamp: Timestamp(after),
	})
	if err != nil {
		return Batch{}, fmt.Errorf("%w: encode request: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Batch{}, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Batch{}, fmt.Errorf("%w: unexpected status %s", ErrTransport, resp.Status)
	}

	var decoded PollResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPollResponseSize)).Decode(&decoded); err != nil {
		return Batch{}, fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}

	batch := Batch{
		Primitives:    make([]geometry.Primitive, 0, len(decoded.Drawings)),
		LastTimestamp: int64(decoded.LastTimestamp),
		Received:      len(decoded.Drawings),
	}
	for i, d := range decoded.Drawings {
		prim, err := p.validator.ValidateDrawing(d)
		if err != nil {
			p.logger.DebugContext(ctx, "skipping drawing", "index", i, "error", err)
			continue
		}
		batch.Primitives = append(batch.Primitives, prim)
	}

	p.drawn.Add(int64(len(batch.Primitives)))
	return batch, nil
}
