package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Kind identifies one of the user-visible notices.
type Kind int

const (
	ConnectionLost Kind = iota + 1
	QuotaExceeded
)

func (k Kind) String() string {
	switch k {
	case ConnectionLost:
		return "connection_lost"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message returns the text shown to the user.
func (k Kind) Message() string {
	switch k {
	case ConnectionLost:
		return "connection to the server is lost, scene updates won't be received"
	case QuotaExceeded:
		return "Exceeded memory quota on local storage"
	default:
		return ""
	}
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, kind Kind)
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, kind Kind)

func (f Func) Notify(ctx context.Context, kind Kind) { f(ctx, kind) }

// Writer prints every notice as one line.
type Writer struct {
	out io.Writer
	mu  sync.Mutex
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Notify(_ context.Context, kind Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.out, kind.Message())
}

// Log: Notifier writing notices to a structured logger at warn level
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, kind Kind) {
	l.logger.WarnContext(ctx, kind.Message(), "notice", kind.String())
}

// Multi fans a notice out to several notifiers, in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, kind Kind) {
	for _, n := range m {
		n.Notify(ctx, kind)
	}
}

// Recorder keeps every notice it receives. Safe for concurrent use.
type Recorder struct {
	kinds []Kind
	mu    sync.Mutex
}

func (r *Recorder) Notify(_ context.Context, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.kinds = append(r.kinds, kind)
}

// Kinds: notices received so far, in order
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Count: number of notices of the given kind
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}
