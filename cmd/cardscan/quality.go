package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/quality"
)

func qualityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quality IMAGE...",
		Short: "Score photo sharpness",
		Long: `Print the Laplacian variance, rating and accept decision for each photo,
using the configured sharpness thresholds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuality,
	}
}

func runQuality(_ *cobra.Command, args []string) error {
	gate := quality.NewGate(appConfig.QualityConfig(), slog.Default())

	rows := make([][]string, 0, len(args))
	for _, path := range args {
		frame, err := loadFrame(path)
		if err != nil {
			rows = append(rows, []string{path, "-", cli.StyleError(err.Error()), ""})
			continue
		}
		score := gate.Score(frame)
		verdict := cli.StyleSuccess("accepted")
		if !score.Accepted {
			verdict = cli.StyleWarning(quality.Message(score.Rating))
		}
		rows = append(rows, []string{path, fmt.Sprintf("%.1f", score.Variance), score.Rating.String(), verdict})
	}

	fmt.Println(cli.RenderTable([]string{"Image", "Variance", "Rating", "Result"}, rows))
	return nil
}
