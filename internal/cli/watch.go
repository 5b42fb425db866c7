package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattfrayser/scenesync/internal/config"
	"github.com/mattfrayser/scenesync/internal/notify"
	"github.com/mattfrayser/scenesync/internal/render"
	"github.com/mattfrayser/scenesync/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Transport string
	Frames    string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <address>",
		Short: "Follow a scene and render every update",
		Long: `Follow a scene until interrupted (poll) or until the server closes the
push channel.

The address is a scene id, a page URL carrying it in the fragment, or a URL
with the id in its path.

Example:
  scenesync watch XVlBzg --frames ./scene.png
  scenesync watch 'https://scenes.example.com/#XVlBzg' --transport poll`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", "", "poll or push (overrides config)")
	cmd.Flags().StringVar(&opts.Frames, "frames", "", "write the latest frame to this PNG file")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, address string) error {
	cfg := opts.Config
	if opts.Transport != "" {
		cfg.Transport = opts.Transport
	}
	if opts.Frames != "" {
		cfg.FramePath = opts.Frames
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sceneID, err := session.ParseAddress(address)
	if err != nil {
		return err
	}

	storage, err := session.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if closeErr := storage.Close(); closeErr != nil {
			slog.Error("error closing storage", "error", closeErr)
		}
	}()

	surface := render.NewSurface(cfg.Width, cfg.Height)
	defer surface.Close()

	deps := session.Deps{
		Storage: storage,
		Surface: surface,
		Notifier: notify.Multi{
			notify.NewWriter(cmd.ErrOrStderr()),
			notify.NewLog(slog.Default()),
		},
		Logger: slog.Default(),
	}
	if cfg.FramePath != "" {
		deps.Sink = render.NewPNGSink(cfg.FramePath)
	}

	s, err := session.New(cfg, sceneID, deps)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching scene %s over %s. Press Ctrl-C to stop.\n", sceneID, cfg.Transport)
	if err := s.Run(ctx); err != nil {
		return err
	}

	if cfg.Transport == config.TransportPoll {
		slog.Info("poll session finished", "drawn", s.Drawn(), "cursor", s.Scene().CurrentCursor())
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
