package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mattfrayser/scenesync/internal/render"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Out string
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <scene-id>",
		Short: "Render a stored scene snapshot to PNG",
		Long: `Render the snapshot persisted by a previous push session.

Example:
  scenesync render XVlBzg --out scene.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "PNG file to write (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions, rawID string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config

	sceneID, cache, err := loadSnapshot(ctx, cfg, rawID)
	if err != nil {
		return err
	}

	palette, err := render.NewPalette(cfg.Palette, cfg.StrokeColor)
	if err != nil {
		return err
	}

	surface := render.NewSurface(cfg.Width, cfg.Height)
	defer surface.Close()

	r, err := render.New(surface, render.Options{
		LineWidth:  cfg.LineWidth,
		Background: cfg.Background,
		Palette:    palette,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}
	if err := r.Redraw(cache); err != nil {
		return fmt.Errorf("render scene %s: %w", sceneID, err)
	}
	if err := render.WritePNG(opts.Out, r.Image()); err != nil {
		return fmt.Errorf("write %s: %w", opts.Out, err)
	}

	slog.Info("scene rendered", "scene", sceneID, "objects", cache.Len(), "out", opts.Out)
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d objects of scene %s to %s\n", cache.Len(), sceneID, opts.Out)
	return nil
}
