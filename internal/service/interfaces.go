// Package service defines the interfaces shared between the capture pipeline
// and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/collectorstream/internal/model"
)

// CardFilter defines filtering options for card queries.
type CardFilter struct {
	Sport *model.Sport
	// StaleBefore selects cards never valued or last valued before this time.
	StaleBefore *time.Time
	Limit       int
}

// CardStore is the persistence collaborator that receives identified cards.
type CardStore interface {
	SaveCard(ctx context.Context, card model.CardUpload) (int64, error)
	GetCard(ctx context.Context, id int64) (*model.Card, error)
	ListCards(ctx context.Context, filter CardFilter) ([]model.Card, error)
	UpdateMarketValue(ctx context.Context, id int64, valuation model.Valuation) error
}

// ImageStore persists captured card images and returns a reference to them.
type ImageStore interface {
	SaveImage(ctx context.Context, side model.Side, jpeg []byte) (string, error)
}

// Identifier runs identification for a captured card.
type Identifier interface {
	Identify(ctx context.Context, req model.IdentificationRequest) model.IdentificationResult
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
