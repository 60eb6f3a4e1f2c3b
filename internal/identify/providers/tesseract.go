//go:build tesseract

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/identify"
	"github.com/Veraticus/collectorstream/internal/model"
)

func init() {
	tesseractFactory = newTesseract
}

// tesseractProvider reads printed text locally. It never needs the network
// and is scored low so it only wins when everything else failed.
type tesseractProvider struct {
	client *gosseract.Client
	logger *slog.Logger
	mu     sync.Mutex
}

func newTesseract(cfg TesseractConfig, logger *slog.Logger) (identify.Provider, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(langs...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Card numbers and set codes are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &tesseractProvider{client: client, logger: logger.With("provider", NameTesseract)}, nil
}

// Name returns the provider name.
func (p *tesseractProvider) Name() string {
	return NameTesseract
}

// Attempt reads the back, where card number, year and maker are printed,
// falling back to the front.
func (p *tesseractProvider) Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	if err := ctx.Err(); err != nil {
		return model.ProviderAttempt{}, err
	}
	img := req.Back
	if len(img) == 0 {
		img = req.Front
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.SetImageFromBytes(img); err != nil {
		return model.ProviderAttempt{}, common.NewProviderError(NameTesseract, common.KindBadResponse, err)
	}
	text, err := p.client.Text()
	if err != nil {
		return model.ProviderAttempt{}, common.NewProviderError(NameTesseract, common.KindBadResponse, err)
	}
	p.logger.Debug("ocr text read", "chars", len(text))
	return parseOCRText(text), nil
}

// Close releases the OCR engine.
func (p *tesseractProvider) Close() error {
	return p.client.Close()
}
