package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"

	"github.com/mattfrayser/scenesync/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	PDF string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <scene-id>",
		Short: "Export a stored scene snapshot to PDF",
		Long: `Write the persisted snapshot of a scene to a single A4 page.

Example:
  scenesync export XVlBzg --pdf scene.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "PDF file to write (required)")
	_ = cmd.MarkFlagRequired("pdf")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, rawID string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config

	sceneID, cache, err := loadSnapshot(ctx, cfg, rawID)
	if err != nil {
		return err
	}

	stroke, err := colorful.Hex(cfg.StrokeColor)
	if err != nil {
		return fmt.Errorf("invalid stroke color %q: %w", cfg.StrokeColor, err)
	}

	err = export.WritePDFFile(opts.PDF, export.Primitives(cache), export.Options{
		Title:  "Scene " + sceneID,
		Stroke: stroke,
	})
	if err != nil {
		return fmt.Errorf("export scene %s: %w", sceneID, err)
	}

	slog.Info("scene exported", "scene", sceneID, "objects", cache.Len(), "pdf", opts.PDF)
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d objects of scene %s to %s\n", cache.Len(), sceneID, opts.PDF)
	return nil
}
