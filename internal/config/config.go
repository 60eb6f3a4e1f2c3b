// Package config loads cardscan settings from viper into typed structs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/collectorstream/internal/boundary"
	"github.com/Veraticus/collectorstream/internal/capture"
	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/crop"
	"github.com/Veraticus/collectorstream/internal/geometry"
	"github.com/Veraticus/collectorstream/internal/identify"
	"github.com/Veraticus/collectorstream/internal/identify/providers"
	"github.com/Veraticus/collectorstream/internal/market"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/quality"
	"github.com/Veraticus/collectorstream/internal/sheets"
)

// EnvPrefix prefixes every environment override, e.g.
// CARDSCAN_IDENTIFY_THRESHOLD.
const EnvPrefix = "CARDSCAN"

// Config is the full application configuration.
type Config struct {
	Logging  Logging  `mapstructure:"logging"`
	Capture  Capture  `mapstructure:"capture"`
	Quality  Quality  `mapstructure:"quality"`
	Boundary Boundary `mapstructure:"boundary"`
	Crop     Crop     `mapstructure:"crop"`
	Identify Identify `mapstructure:"identify"`
	Storage  Storage  `mapstructure:"storage"`
	Market   Market   `mapstructure:"market"`
	Sheets   Sheets   `mapstructure:"sheets"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Guide is the on-screen framing box in points.
type Guide struct {
	Gravity      string  `mapstructure:"gravity"`
	X            float64 `mapstructure:"x"`
	Y            float64 `mapstructure:"y"`
	Width        float64 `mapstructure:"width"`
	Height       float64 `mapstructure:"height"`
	ViewWidth    float64 `mapstructure:"view_width"`
	ViewHeight   float64 `mapstructure:"view_height"`
	SensorAspect float64 `mapstructure:"sensor_aspect"`
}

// Capture tunes the capture session.
type Capture struct {
	CameraDir          string        `mapstructure:"camera_dir"`
	SportHint          string        `mapstructure:"sport_hint"`
	Orientation        string        `mapstructure:"orientation"`
	Guide              Guide         `mapstructure:"guide"`
	StabilizationDelay time.Duration `mapstructure:"stabilization_delay"`
	MessageTTL         time.Duration `mapstructure:"message_ttl"`
}

// Quality tunes the sharpness gate.
type Quality struct {
	SharpThreshold  float64 `mapstructure:"sharp_threshold"`
	IdealThreshold  float64 `mapstructure:"ideal_threshold"`
	MaxAnalysisEdge int     `mapstructure:"max_analysis_edge"`
}

// Boundary selects and tunes the card detector.
type Boundary struct {
	Detector      string  `mapstructure:"detector"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	AnalysisEdge  int     `mapstructure:"analysis_edge"`
}

// Crop tunes the cropped output.
type Crop struct {
	Padding     float64 `mapstructure:"padding"`
	JPEGQuality int     `mapstructure:"jpeg_quality"`
}

// ProviderKey holds one service's credentials.
type ProviderKey struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OpenRouter configures the free-model fallbacks.
type OpenRouter struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url"`
	Models  []string `mapstructure:"models"`
}

// Tesseract configures local OCR.
type Tesseract struct {
	Languages []string `mapstructure:"languages"`
	Enabled   bool     `mapstructure:"enabled"`
}

// Identify configures the provider chain.
type Identify struct {
	CardSight   ProviderKey   `mapstructure:"cardsight"`
	OpenAI      ProviderKey   `mapstructure:"openai"`
	Anthropic   ProviderKey   `mapstructure:"anthropic"`
	Ximilar     ProviderKey   `mapstructure:"ximilar"`
	OpenRouter  OpenRouter    `mapstructure:"openrouter"`
	Tesseract   Tesseract     `mapstructure:"tesseract"`
	Order       []string      `mapstructure:"order"`
	Threshold   float64       `mapstructure:"threshold"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RateLimit   int           `mapstructure:"rate_limit"`
}

// Storage locates the database and image directory.
type Storage struct {
	DatabasePath string `mapstructure:"database_path"`
	ImageDir     string `mapstructure:"image_dir"`
}

// Market configures eBay valuation.
type Market struct {
	AppID       string        `mapstructure:"app_id"`
	CertID      string        `mapstructure:"cert_id"`
	Marketplace string        `mapstructure:"marketplace"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	Workers     int           `mapstructure:"workers"`
	SearchLimit int           `mapstructure:"search_limit"`
}

// Sheets configures the collection export.
type Sheets struct {
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SpreadsheetName    string `mapstructure:"spreadsheet_name"`
}

// envAliases are conventional variable names accepted alongside the
// CARDSCAN_ ones.
var envAliases = map[string][]string{
	"identify.cardsight.api_key":  {"CARDSIGHT_API_KEY"},
	"identify.openai.api_key":     {"OPENAI_API_KEY"},
	"identify.anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"identify.openrouter.api_key": {"OPENROUTER_API_KEY"},
	"identify.ximilar.api_key":    {"XIMILAR_API_KEY"},
	"market.app_id":               {"EBAY_APP_ID"},
	"market.cert_id":              {"EBAY_CERT_ID"},
	"sheets.client_id":            {"GOOGLE_SHEETS_CLIENT_ID"},
	"sheets.client_secret":        {"GOOGLE_SHEETS_CLIENT_SECRET"},
	"sheets.refresh_token":        {"GOOGLE_SHEETS_REFRESH_TOKEN"},
	"sheets.service_account_path": {"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH"},
	"sheets.spreadsheet_id":       {"GOOGLE_SHEETS_SPREADSHEET_ID"},
}

// Init registers defaults and environment bindings on v.
func Init(v *viper.Viper) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, aliases...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// SetDefaults registers every key so environment overrides and Unmarshal
// see it.
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "cardscan")

	q := quality.DefaultConfig()
	b := boundary.DefaultOptions()
	c := crop.DefaultConfig()
	sh := sheets.DefaultConfig()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("capture.camera_dir", "")
	v.SetDefault("capture.sport_hint", "")
	v.SetDefault("capture.orientation", "up")
	v.SetDefault("capture.stabilization_delay", capture.DefaultStabilizationDelay)
	v.SetDefault("capture.message_ttl", capture.DefaultMessageTTL)
	v.SetDefault("capture.guide.gravity", "fill")
	for _, k := range []string{"x", "y", "width", "height", "view_width", "view_height", "sensor_aspect"} {
		v.SetDefault("capture.guide."+k, 0.0)
	}

	v.SetDefault("quality.sharp_threshold", q.SharpThreshold)
	v.SetDefault("quality.ideal_threshold", q.IdealThreshold)
	v.SetDefault("quality.max_analysis_edge", q.MaxAnalysisEdge)

	v.SetDefault("boundary.detector", boundary.EdgeName)
	v.SetDefault("boundary.min_confidence", b.MinConfidence)
	v.SetDefault("boundary.analysis_edge", b.AnalysisEdge)

	v.SetDefault("crop.padding", c.Padding)
	v.SetDefault("crop.jpeg_quality", c.JPEGQuality)

	for _, name := range []string{providers.NameCardSight, providers.NameOpenAI, providers.NameAnthropic, providers.NameXimilar} {
		v.SetDefault("identify."+name+".api_key", "")
		v.SetDefault("identify."+name+".base_url", "")
		v.SetDefault("identify."+name+".model", "")
	}
	v.SetDefault("identify.openrouter.api_key", "")
	v.SetDefault("identify.openrouter.base_url", "")
	v.SetDefault("identify.openrouter.models", providers.DefaultOpenRouterModels)
	v.SetDefault("identify.tesseract.enabled", false)
	v.SetDefault("identify.tesseract.languages", []string{"eng"})
	v.SetDefault("identify.order", providers.DefaultOrder)
	v.SetDefault("identify.threshold", identify.DefaultThreshold)
	v.SetDefault("identify.call_timeout", identify.DefaultCallTimeout)
	v.SetDefault("identify.cache_ttl", identify.DefaultCacheTTL)
	v.SetDefault("identify.rate_limit", providers.DefaultRateLimit)

	v.SetDefault("storage.database_path", filepath.Join(dataDir, "cards.db"))
	v.SetDefault("storage.image_dir", filepath.Join(dataDir, "images"))

	v.SetDefault("market.app_id", "")
	v.SetDefault("market.cert_id", "")
	v.SetDefault("market.marketplace", market.DefaultMarketplace)
	v.SetDefault("market.stale_after", 7*24*time.Hour)
	v.SetDefault("market.workers", market.DefaultWorkers)
	v.SetDefault("market.search_limit", market.DefaultSearchLimit)

	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_name", sh.SpreadsheetName)
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Capture.CameraDir = ExpandPath(cfg.Capture.CameraDir)
	cfg.Storage.DatabasePath = ExpandPath(cfg.Storage.DatabasePath)
	cfg.Storage.ImageDir = ExpandPath(cfg.Storage.ImageDir)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return invalid("invalid log format: %s", c.Logging.Format)
	}

	if c.Quality.SharpThreshold <= 0 || c.Quality.IdealThreshold < c.Quality.SharpThreshold {
		return invalid("quality thresholds must satisfy 0 < sharp <= ideal (got %.1f, %.1f)",
			c.Quality.SharpThreshold, c.Quality.IdealThreshold)
	}

	if !slices.Contains(boundary.Names(), c.Boundary.Detector) {
		return invalid("unknown boundary detector %q (available: %v)", c.Boundary.Detector, boundary.Names())
	}
	if err := c.BoundaryOptions().Validate(); err != nil {
		return err
	}

	if c.Crop.Padding < 0 || c.Crop.Padding >= 0.5 {
		return invalid("crop padding must be in [0, 0.5)")
	}
	if c.Crop.JPEGQuality < 1 || c.Crop.JPEGQuality > 100 {
		return invalid("jpeg quality must be between 1 and 100")
	}

	if _, err := c.SportHint(); err != nil {
		return err
	}
	if _, err := c.Orientation(); err != nil {
		return err
	}
	if _, err := c.Guide(); err != nil {
		return err
	}

	if c.Identify.Threshold <= 0 || c.Identify.Threshold > 1 {
		return invalid("identification threshold must be in (0, 1]")
	}
	if c.Identify.CallTimeout <= 0 {
		return invalid("identification call timeout must be positive")
	}
	for _, name := range c.Identify.Order {
		if !slices.Contains(providers.DefaultOrder, name) {
			return invalid("unknown provider %q in identify.order", name)
		}
	}

	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		return invalid("storage.database_path is required")
	}
	if strings.TrimSpace(c.Storage.ImageDir) == "" {
		return invalid("storage.image_dir is required")
	}

	if c.Market.Workers < 0 {
		return invalid("market workers cannot be negative")
	}
	return nil
}

// Orientation parses capture.orientation, where the card top points in
// camera frames.
func (c *Config) Orientation() (model.Orientation, error) {
	o, err := model.ParseOrientation(c.Capture.Orientation)
	if err != nil {
		return model.OrientationUp, invalid("capture.orientation: %v", err)
	}
	return o, nil
}

// SportHint parses capture.sport_hint; empty means no hint.
func (c *Config) SportHint() (model.Optional[model.Sport], error) {
	if strings.TrimSpace(c.Capture.SportHint) == "" {
		return model.None[model.Sport](), nil
	}
	sport, ok := model.ParseSport(c.Capture.SportHint)
	if !ok {
		return model.None[model.Sport](), invalid("unknown sport hint %q", c.Capture.SportHint)
	}
	return model.Some(sport), nil
}

// Guide returns the configured framing box, or nil when none is set.
func (c *Config) Guide() (*crop.ScreenGuide, error) {
	g := c.Capture.Guide
	if g.Width <= 0 || g.Height <= 0 {
		return nil, nil
	}
	if g.ViewWidth <= 0 || g.ViewHeight <= 0 {
		return nil, invalid("capture.guide needs view_width and view_height")
	}

	var gravity geometry.VideoGravity
	switch strings.ToLower(g.Gravity) {
	case "", "fill":
		gravity = geometry.GravityResizeAspectFill
	case "fit":
		gravity = geometry.GravityResizeAspect
	case "stretch":
		gravity = geometry.GravityResize
	default:
		return nil, invalid("unknown guide gravity %q (fill, fit, stretch)", g.Gravity)
	}

	return &crop.ScreenGuide{
		Rect: geometry.ScreenRect{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height},
		Viewport: geometry.Viewport{
			Width:        g.ViewWidth,
			Height:       g.ViewHeight,
			SensorAspect: g.SensorAspect,
			Gravity:      gravity,
		},
	}, nil
}

// QualityConfig returns the gate settings.
func (c *Config) QualityConfig() quality.Config {
	return quality.Config{
		SharpThreshold:  c.Quality.SharpThreshold,
		IdealThreshold:  c.Quality.IdealThreshold,
		MaxAnalysisEdge: c.Quality.MaxAnalysisEdge,
	}
}

// BoundaryOptions returns detector options over the card defaults.
func (c *Config) BoundaryOptions() boundary.Options {
	opts := boundary.DefaultOptions()
	opts.MinConfidence = c.Boundary.MinConfidence
	opts.AnalysisEdge = c.Boundary.AnalysisEdge
	return opts
}

// CropConfig returns extractor settings.
func (c *Config) CropConfig() crop.Config {
	cfg := crop.DefaultConfig()
	cfg.Padding = c.Crop.Padding
	cfg.JPEGQuality = c.Crop.JPEGQuality
	return cfg
}

// MachineConfig returns capture session settings.
func (c *Config) MachineConfig() (capture.Config, error) {
	cfg := capture.DefaultConfig()
	guide, err := c.Guide()
	if err != nil {
		return cfg, err
	}
	hint, err := c.SportHint()
	if err != nil {
		return cfg, err
	}
	cfg.Guide = guide
	cfg.SportHint = hint
	cfg.StabilizationDelay = c.Capture.StabilizationDelay
	cfg.MessageTTL = c.Capture.MessageTTL
	return cfg, nil
}

// ChainConfig returns the chain threshold and timeout.
func (c *Config) ChainConfig() identify.Config {
	return identify.Config{Threshold: c.Identify.Threshold, CallTimeout: c.Identify.CallTimeout}
}

// ProvidersConfig returns provider credentials and ordering.
func (c *Config) ProvidersConfig() providers.Config {
	endpoint := func(k ProviderKey) providers.Endpoint {
		return providers.Endpoint{APIKey: k.APIKey, BaseURL: k.BaseURL, Model: k.Model}
	}
	return providers.Config{
		CardSight: endpoint(c.Identify.CardSight),
		OpenAI:    endpoint(c.Identify.OpenAI),
		Anthropic: endpoint(c.Identify.Anthropic),
		Ximilar:   endpoint(c.Identify.Ximilar),
		OpenRouter: providers.OpenRouterConfig{
			APIKey:  c.Identify.OpenRouter.APIKey,
			BaseURL: c.Identify.OpenRouter.BaseURL,
			Models:  c.Identify.OpenRouter.Models,
		},
		Tesseract: providers.TesseractConfig{
			Languages: c.Identify.Tesseract.Languages,
			Enabled:   c.Identify.Tesseract.Enabled,
		},
		Order:     c.Identify.Order,
		Retry:     providers.DefaultRetry(),
		RateLimit: c.Identify.RateLimit,
	}
}

// EbayConfig returns market client settings.
func (c *Config) EbayConfig() market.Config {
	return market.Config{
		AppID:       c.Market.AppID,
		CertID:      c.Market.CertID,
		Marketplace: c.Market.Marketplace,
		Limit:       c.Market.SearchLimit,
	}
}

// SheetsConfig returns export settings over the sheets defaults.
func (c *Config) SheetsConfig() sheets.Config {
	cfg := sheets.DefaultConfig()
	cfg.ClientID = c.Sheets.ClientID
	cfg.ClientSecret = c.Sheets.ClientSecret
	cfg.RefreshToken = c.Sheets.RefreshToken
	cfg.ServiceAccountPath = c.Sheets.ServiceAccountPath
	cfg.SpreadsheetID = c.Sheets.SpreadsheetID
	if c.Sheets.SpreadsheetName != "" {
		cfg.SpreadsheetName = c.Sheets.SpreadsheetName
	}
	return cfg
}

// ExpandPath expands a leading ~ and $VAR references in a path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
