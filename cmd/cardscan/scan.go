package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/capture"
	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/config"
	"github.com/Veraticus/collectorstream/internal/storage"
	"github.com/Veraticus/collectorstream/internal/tui"
	"github.com/Veraticus/collectorstream/internal/tui/themes"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan cards front and back",
		Long: `Scan cards from a camera directory. Each card is photographed front first,
then back; both sides are gated for sharpness, cropped and identified.

By default an interactive screen walks through each step. With --batch the
images in the camera directory are taken in pairs (front, back) and every
identified card is saved without prompting.`,
		RunE: runScan,
	}

	cmd.Flags().String("camera", "", "directory of photos to use as the camera (overrides capture.camera_dir)")
	cmd.Flags().Bool("batch", false, "scan image pairs without prompting")
	cmd.Flags().String("sport", "", "sport hint for identification (overrides capture.sport_hint)")
	cmd.Flags().String("theme", "default", "color theme (default, catppuccin)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	dir, _ := cmd.Flags().GetString("camera")
	if dir == "" {
		dir = appConfig.Capture.CameraDir
	}
	if dir == "" {
		return fmt.Errorf("no camera directory: pass --camera or set capture.camera_dir")
	}
	if sport, _ := cmd.Flags().GetString("sport"); sport != "" {
		appConfig.Capture.SportHint = sport
	}

	camera, err := capture.NewDirCamera(config.ExpandPath(dir))
	if err != nil {
		return err
	}
	if camera.Orientation, err = appConfig.Orientation(); err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	images, err := storage.NewImageStore(appConfig.Storage.ImageDir)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	serveMetrics(ctx, metricsAddr, registry)

	machine, closeChain, err := newMachine(camera, store, images, registry, logger)
	if err != nil {
		return err
	}
	defer closeChain()
	defer machine.Close()

	if batch, _ := cmd.Flags().GetBool("batch"); batch {
		return runBatchScan(ctx, machine, camera.Remaining())
	}

	if err := machine.Watch(ctx); err != nil {
		slog.Warn("Live preview unavailable", "error", err)
	}
	themeName, _ := cmd.Flags().GetString("theme")
	saved, err := tui.Run(ctx, machine, themes.ByName(themeName))
	if err != nil {
		return err
	}
	slog.Info(cli.FormatSuccess(fmt.Sprintf("Saved %d cards", len(saved))), "ids", saved)
	return nil
}

func newMachine(camera capture.Camera, store *storage.SQLiteStorage, images *storage.ImageStore,
	registry prometheus.Registerer, logger *slog.Logger) (*capture.Machine, func(), error) {
	p, err := newPipeline(logger)
	if err != nil {
		return nil, nil, err
	}
	chain, err := newChain(registry, logger)
	if err != nil {
		return nil, nil, err
	}
	closeChain := func() {
		if err := chain.Close(); err != nil {
			slog.Warn("Failed to close identification providers", "error", err)
		}
	}

	cfg, err := appConfig.MachineConfig()
	if err != nil {
		closeChain()
		return nil, nil, err
	}
	machine, err := capture.NewMachine(capture.Deps{
		Camera:     camera,
		Gate:       p.gate,
		Extractor:  p.extractor,
		Identifier: chain,
		Cards:      store,
		Images:     images,
	}, cfg, logger)
	if err != nil {
		closeChain()
		return nil, nil, err
	}
	return machine, closeChain, nil
}

func runBatchScan(ctx context.Context, machine *capture.Machine, photos int) error {
	slog.Info(cli.FormatTitle("Scanning cards"), "photos", photos)

	failed := 0
	saved, err := machine.RunBatch(ctx, func(r capture.BatchResult) {
		if r.Err != nil {
			failed++
			slog.Warn(cli.FormatWarning("Card not saved"), "error", r.Err)
			return
		}
		attrs := []any{"id", r.CardID}
		if r.Result != nil && r.Result.Chosen != nil {
			attrs = append(attrs,
				"provider", r.Result.Chosen.Provider,
				"confidence", fmt.Sprintf("%.2f", r.Result.Chosen.Confidence),
				"needs_verification", r.Result.NeedsVerification)
		}
		slog.Info(cli.FormatSuccess("Card saved"), attrs...)
	})

	slog.Info(cli.FormatInfo("Batch scan finished"), "saved", saved, "failed", failed)
	if errors.Is(err, capture.ErrNoMoreFrames) {
		slog.Warn(cli.FormatWarning("The last photo had no matching back and was skipped"))
		return nil
	}
	return err
}
