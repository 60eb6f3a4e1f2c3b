// Package sheets exports the card collection to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/collectorstream/internal/common"
)

// DefaultSpreadsheetName is used when a new spreadsheet is created.
const DefaultSpreadsheetName = "Card Collection"

// AuthMethod is how the writer authenticates to the Sheets API.
type AuthMethod string

// Supported authentication methods.
const (
	AuthServiceAccount AuthMethod = "service_account"
	AuthRefreshToken   AuthMethod = "refresh_token"
)

// Config holds the configuration for the Google Sheets writer. Exactly one
// of ServiceAccountPath or the ClientID/ClientSecret/RefreshToken triple
// must be set.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	// SpreadsheetID targets an existing spreadsheet; empty creates one.
	SpreadsheetID   string
	SpreadsheetName string
	TimeZone        string
	// BatchSize caps the rows sent per values update.
	BatchSize        int
	RetryAttempts    int
	RetryDelay       time.Duration
	EnableFormatting bool
}

// DefaultConfig returns export defaults without credentials.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  DefaultSpreadsheetName,
		EnableFormatting: true,
		TimeZone:         "America/New_York",
		BatchSize:        500,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Auth reports which credentials are configured.
func (c *Config) Auth() (AuthMethod, error) {
	refresh := c.ClientID != "" || c.ClientSecret != "" || c.RefreshToken != ""
	switch {
	case refresh && c.ServiceAccountPath != "":
		return "", fmt.Errorf("%w: set either a service account or an OAuth refresh token, not both", common.ErrInvalidConfig)
	case c.ServiceAccountPath != "":
		return AuthServiceAccount, nil
	case refresh:
		if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
			return "", fmt.Errorf("%w: OAuth export needs client ID, client secret and refresh token", common.ErrMissingConfig)
		}
		return AuthRefreshToken, nil
	default:
		return "", fmt.Errorf("%w: no Google Sheets credentials configured", common.ErrMissingConfig)
	}
}

// Validate checks credentials and batching limits.
func (c *Config) Validate() error {
	if _, err := c.Auth(); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}
