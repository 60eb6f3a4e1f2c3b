package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidCard  = errors.New("invalid card")
	ErrInvalidID    = errors.New("invalid card ID")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return nil
}

// validateUpload checks an upload before it reaches the database.
func validateUpload(card *model.CardUpload) error {
	if card == nil {
		return fmt.Errorf("%w: card", ErrNilParameter)
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCard, err)
	}
	if sport, ok := card.Sport.Get(); ok {
		if _, known := model.ParseSport(string(sport)); !known {
			return fmt.Errorf("%w: unknown sport %q", ErrInvalidCard, sport)
		}
	}
	if cond, ok := card.Condition.Get(); ok {
		if _, err := model.ParseCondition(string(cond)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCard, err)
		}
	}
	return nil
}

// validateValuation checks a market estimate before it is stored.
func validateValuation(v *model.Valuation) error {
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: valuation confidence must be between 0 and 1", ErrInvalidCard)
	}
	if v.SampleSize < 0 {
		return fmt.Errorf("%w: negative sample size", ErrInvalidCard)
	}
	if p, ok := v.Price.Get(); ok && p < 0 {
		return fmt.Errorf("%w: negative market price", ErrInvalidCard)
	}
	return nil
}
