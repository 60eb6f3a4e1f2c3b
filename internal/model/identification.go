package model

import (
	"sort"
	"time"
)

// Side identifies which face of the card an image shows.
type Side string

// Card sides.
const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Field names a single identified attribute of a card.
type Field string

// Identified fields, each scored independently by providers.
const (
	FieldPlayerName     Field = "playerName"
	FieldTeam           Field = "team"
	FieldYear           Field = "year"
	FieldSet            Field = "set"
	FieldCardNumber     Field = "cardNumber"
	FieldManufacturer   Field = "manufacturer"
	FieldSport          Field = "sport"
	FieldGrading        Field = "grading"
	FieldEstimatedValue Field = "estimatedValue"
)

// AllFields lists fields in display order.
var AllFields = []Field{
	FieldPlayerName,
	FieldTeam,
	FieldYear,
	FieldSet,
	FieldCardNumber,
	FieldManufacturer,
	FieldSport,
	FieldGrading,
	FieldEstimatedValue,
}

// Grading holds professional grading details when a card is slabbed.
type Grading struct {
	Company    Optional[string] `json:"company"`
	Grade      Optional[string] `json:"grade"`
	CertNumber Optional[string] `json:"certNumber"`
}

// Empty reports whether no grading detail is known.
func (g *Grading) Empty() bool {
	return g == nil || (!g.Company.IsSome() && !g.Grade.IsSome() && !g.CertNumber.IsSome())
}

// VisualCues are hints a vision model noticed on the card surface.
type VisualCues struct {
	BorderColor  Optional[string] `json:"borderColor"`
	FoilPattern  Optional[string] `json:"foilPattern"`
	SerialNumber Optional[string] `json:"serialNumber"`
	RookieLogo   bool             `json:"rookieLogo"`
	Autograph    bool             `json:"autograph"`
	Relic        bool             `json:"relic"`
}

// CardFields is the normalized shape every provider response is parsed into.
// Unknown values are None, never "" or 0.
type CardFields struct {
	PlayerName      Optional[string]  `json:"playerName"`
	Team            Optional[string]  `json:"team"`
	Year            Optional[string]  `json:"year"`
	Set             Optional[string]  `json:"set"`
	CardNumber      Optional[string]  `json:"cardNumber"`
	Manufacturer    Optional[string]  `json:"manufacturer"`
	Sport           Optional[Sport]   `json:"sport"`
	SportProvenance Optional[string]  `json:"sportProvenance"`
	ParallelVariant Optional[string]  `json:"parallelVariant"`
	EstimatedValue  Optional[float64] `json:"estimatedValue"`
	Grading         *Grading          `json:"grading,omitempty"`
	VisualCues      *VisualCues       `json:"visualCues,omitempty"`
}

// Has reports whether a field carries a known value.
func (c *CardFields) Has(f Field) bool {
	if c == nil {
		return false
	}
	switch f {
	case FieldPlayerName:
		return c.PlayerName.IsSome()
	case FieldTeam:
		return c.Team.IsSome()
	case FieldYear:
		return c.Year.IsSome()
	case FieldSet:
		return c.Set.IsSome()
	case FieldCardNumber:
		return c.CardNumber.IsSome()
	case FieldManufacturer:
		return c.Manufacturer.IsSome()
	case FieldSport:
		return c.Sport.IsSome()
	case FieldGrading:
		return !c.Grading.Empty()
	case FieldEstimatedValue:
		return c.EstimatedValue.IsSome()
	default:
		return false
	}
}

// IdentificationRequest is the payload sent to each provider.
type IdentificationRequest struct {
	Front     []byte
	Back      []byte
	SportHint Optional[Sport]
}

// HasBack reports whether a back image is attached.
func (r IdentificationRequest) HasBack() bool {
	return len(r.Back) > 0
}

// ProviderAttempt is one provider's outcome within a chain run.
type ProviderAttempt struct {
	Err             error
	Fields          *CardFields
	FieldConfidence map[Field]float64
	Provider        string
	Confidence      float64
	Duration        time.Duration
}

// Succeeded reports whether the provider returned a parsed result.
func (a ProviderAttempt) Succeeded() bool {
	return a.Err == nil && a.Fields != nil
}

// IdentificationResult is the aggregated outcome of a fallback chain run.
type IdentificationResult struct {
	Chosen              *ProviderAttempt
	Attempts            []ProviderAttempt
	LowConfidenceFields []Field
	Threshold           float64
	Exhausted           bool
	NeedsVerification   bool
}

// Fields returns the chosen attempt's fields, or nil.
func (r IdentificationResult) Fields() *CardFields {
	if r.Chosen == nil {
		return nil
	}
	return r.Chosen.Fields
}

// Confidence returns the chosen attempt's confidence, or 0.
func (r IdentificationResult) Confidence() float64 {
	if r.Chosen == nil {
		return 0
	}
	return r.Chosen.Confidence
}

// Attempts is an ordered attempt log supporting best-attempt selection.
type Attempts []ProviderAttempt

// Best returns the index of the highest-confidence attempt that produced
// fields, preferring the earliest on ties. Attempts that errored are only
// chosen when nothing succeeded. Returns -1 for an empty log.
func (a Attempts) Best() int {
	best := -1
	for i, attempt := range a {
		if best == -1 {
			best = i
			continue
		}
		cur := a[best]
		if attempt.Succeeded() != cur.Succeeded() {
			if attempt.Succeeded() {
				best = i
			}
			continue
		}
		if attempt.Confidence > cur.Confidence {
			best = i
		}
	}
	return best
}

// ByConfidence returns a copy sorted by descending confidence, stable on ties.
func (a Attempts) ByConfidence() Attempts {
	out := make(Attempts, len(a))
	copy(out, a)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
