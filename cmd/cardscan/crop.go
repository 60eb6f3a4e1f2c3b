package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/model"
)

func cropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop IMAGE",
		Short: "Detect and crop a card from a photo",
		Long: `Find the card in a photo with the configured boundary detector, crop it to
the standard card size and write the result as JPEG. Without a detected
boundary the configured guide box is used, then the full frame.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrop,
	}

	cmd.Flags().StringP("output", "o", "", "output path (default: <image>_card.jpg)")
	cmd.Flags().Bool("thumbnail", false, "also write a thumbnail next to the output")

	return cmd
}

func runCrop(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(slog.Default())
	if err != nil {
		return err
	}

	frame, err := loadFrame(args[0])
	if err != nil {
		return err
	}
	guide, err := appConfig.Guide()
	if err != nil {
		return err
	}
	side := p.extractor.Extract(cmd.Context(), frame, guide)
	side.Side = model.SideFront

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "_card.jpg"
	}

	data, err := p.extractor.Payload(side)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	attrs := []any{"output", out, "cropped", side.Cropped}
	if side.Boundary != nil {
		attrs = append(attrs,
			"source", side.Boundary.Source,
			"confidence", fmt.Sprintf("%.2f", side.Boundary.Confidence))
	}

	if thumb, _ := cmd.Flags().GetBool("thumbnail"); thumb {
		data, err := p.extractor.ThumbnailOf(side)
		if err != nil {
			return err
		}
		thumbPath := strings.TrimSuffix(out, filepath.Ext(out)) + "_thumb.jpg"
		if err := os.WriteFile(thumbPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", thumbPath, err)
		}
		attrs = append(attrs, "thumbnail", thumbPath)
	}

	slog.Info(cli.FormatSuccess("Card cropped"), attrs...)
	return nil
}
