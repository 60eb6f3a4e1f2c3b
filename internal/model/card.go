package model

import (
	"fmt"
	"strings"
	"time"
)

// Condition is the raw (ungraded) condition a collector assigns to a card.
type Condition string

// Card conditions.
const (
	ConditionMint      Condition = "mint"
	ConditionNearMint  Condition = "near_mint"
	ConditionExcellent Condition = "excellent"
	ConditionVeryGood  Condition = "very_good"
	ConditionGood      Condition = "good"
	ConditionPoor      Condition = "poor"
)

// ParseCondition accepts the constant names with spaces, dashes or underscores.
func ParseCondition(s string) (Condition, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch Condition(key) {
	case ConditionMint, ConditionNearMint, ConditionExcellent, ConditionVeryGood, ConditionGood, ConditionPoor:
		return Condition(key), nil
	default:
		return "", fmt.Errorf("unknown condition: %q", s)
	}
}

// CardUpload is the record handed to the card store once a scan is
// identified or edited by the user.
type CardUpload struct {
	PlayerName      Optional[string]
	Team            Optional[string]
	Year            Optional[string]
	Set             Optional[string]
	CardNumber      Optional[string]
	Manufacturer    Optional[string]
	Sport           Optional[Sport]
	SportProvenance Optional[string]
	Condition       Optional[Condition]
	Grading         *Grading
	FrontImageRef   string
	BackImageRef    Optional[string]
	EstimatedValue  Optional[float64]
	PurchasePrice   Optional[float64]
	Notes           Optional[string]
	Provider        Optional[string]
	Confidence      float64
}

// Validate checks the minimum a store needs.
func (c *CardUpload) Validate() error {
	if strings.TrimSpace(c.FrontImageRef) == "" {
		return fmt.Errorf("front image reference is required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", c.Confidence)
	}
	if v, ok := c.EstimatedValue.Get(); ok && v < 0 {
		return fmt.Errorf("estimated value cannot be negative")
	}
	if v, ok := c.PurchasePrice.Get(); ok && v < 0 {
		return fmt.Errorf("purchase price cannot be negative")
	}
	return nil
}

// CardUploadFromFields seeds an upload from identified fields.
func CardUploadFromFields(fields *CardFields) CardUpload {
	if fields == nil {
		return CardUpload{}
	}
	return CardUpload{
		PlayerName:      fields.PlayerName,
		Team:            fields.Team,
		Year:            fields.Year,
		Set:             fields.Set,
		CardNumber:      fields.CardNumber,
		Manufacturer:    fields.Manufacturer,
		Sport:           fields.Sport,
		SportProvenance: fields.SportProvenance,
		Grading:         fields.Grading,
		EstimatedValue:  fields.EstimatedValue,
	}
}

// Card is a stored collection item.
type Card struct {
	CreatedAt time.Time
	// Market is nil until the card has been valued.
	Market *Valuation
	CardUpload
	ID int64
}

// Title renders a short human label such as "2023 Topps Chrome Mike Trout #1".
func (c *Card) Title() string {
	parts := make([]string, 0, 4)
	for _, o := range []Optional[string]{c.Year, c.Set, c.PlayerName} {
		if v, ok := o.Get(); ok {
			parts = append(parts, v)
		}
	}
	if v, ok := c.CardNumber.Get(); ok {
		parts = append(parts, "#"+strings.TrimPrefix(v, "#"))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("card %d", c.ID)
	}
	return strings.Join(parts, " ")
}

// Valuation is a market value estimate derived from sold comparables.
type Valuation struct {
	FetchedAt  time.Time
	Price      Optional[float64]
	Low        Optional[float64]
	High       Optional[float64]
	Source     string
	SampleSize int
	Confidence float64
}
