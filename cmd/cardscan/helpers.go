package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/collectorstream/internal/boundary"
	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/crop"
	"github.com/Veraticus/collectorstream/internal/identify"
	"github.com/Veraticus/collectorstream/internal/identify/providers"
	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/quality"
	"github.com/Veraticus/collectorstream/internal/storage"
)

// initStorage opens the collection database and brings its schema current.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(appConfig.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// pipeline is the image side of a scan: sharpness gate and card cropper.
type pipeline struct {
	gate      *quality.Gate
	extractor *crop.Extractor
}

func newPipeline(logger *slog.Logger) (*pipeline, error) {
	detector, err := boundary.New(appConfig.Boundary.Detector, appConfig.BoundaryOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create boundary detector: %w", err)
	}
	return &pipeline{
		gate:      quality.NewGate(appConfig.QualityConfig(), logger),
		extractor: crop.NewExtractor(detector, appConfig.CropConfig(), logger),
	}, nil
}

// side runs one photo through the gate and the cropper. Rejected photos
// return the score and a quality error.
func (p *pipeline) side(ctx context.Context, path string, side model.Side) (model.CapturedSide, error) {
	frame, err := loadFrame(path)
	if err != nil {
		return model.CapturedSide{}, err
	}
	score, err := p.gate.Check(frame)
	if err != nil {
		return model.CapturedSide{Side: side, Quality: score}, fmt.Errorf("%s: %w", path, err)
	}

	guide, err := appConfig.Guide()
	if err != nil {
		return model.CapturedSide{}, err
	}
	captured := p.extractor.Extract(ctx, frame, guide)
	captured.Side = side
	captured.Quality = score
	return captured, nil
}

func loadFrame(path string) (model.Frame, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return model.Frame{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	orientation, err := appConfig.Orientation()
	if err != nil {
		return model.Frame{}, err
	}
	frame, err := model.NewFrame(img, orientation)
	if err != nil {
		return model.Frame{}, err
	}
	return imaging.Upright(frame), nil
}

// newChain builds the identification chain with caching and, when a
// registry is given, metrics.
func newChain(registry prometheus.Registerer, logger *slog.Logger) (*identify.Chain, error) {
	opts := []identify.Option{}
	if ttl := appConfig.Identify.CacheTTL; ttl > 0 {
		opts = append(opts, identify.WithCache(identify.NewCache(ttl)))
	}
	if registry != nil {
		metrics, err := identify.NewMetrics(registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, identify.WithMetrics(metrics))
	}

	chain, err := providers.BuildChain(appConfig.ProvidersConfig(), appConfig.ChainConfig(), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build identification chain: %w", err)
	}
	slog.Debug("Identification chain ready", "providers", chain.Providers())
	return chain, nil
}

// serveMetrics exposes registry on addr until ctx ends. An empty addr
// disables it.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) {
	if addr == "" {
		return
	}
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// parseCardID parses a positive card ID argument.
func parseCardID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid card ID %q", arg), nil)
	}
	return id, nil
}
