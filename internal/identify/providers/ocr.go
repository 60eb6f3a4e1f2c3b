package providers

import (
	"regexp"
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

var (
	copyrightYearPattern = regexp.MustCompile(`(?:©|\(c\)|copyright)\s*((?:19[5-9]|20[0-4])\d)`)
	yearPattern          = regexp.MustCompile(`\b((?:19[5-9]|20[0-4])\d)\b`)
	cardNumberPattern    = regexp.MustCompile(`(?i)(?:\bno\.?|#)\s*([A-Z]{0,4}-?\d{1,4}[A-Z]?)\b`)
)

// manufacturers recognized in OCR text, most specific first.
var manufacturers = []string{"Upper Deck", "Bowman", "Donruss", "Fleer", "Leaf", "Panini", "Score", "Topps"}

// OCR confidence: a base plus a step per extracted field, capped well below
// any sensible acceptance threshold.
const (
	ocrBaseConfidence = 0.2
	ocrFieldStep      = 0.1
	ocrMaxConfidence  = 0.5
)

// parseOCRText extracts the fields that printed card text reliably carries.
func parseOCRText(text string) model.ProviderAttempt {
	fields := &model.CardFields{}
	lower := strings.ToLower(text)

	if m := copyrightYearPattern.FindStringSubmatch(lower); m != nil {
		fields.Year = model.Some(m[1])
	} else if m := yearPattern.FindStringSubmatch(text); m != nil {
		fields.Year = model.Some(m[1])
	}
	if m := cardNumberPattern.FindStringSubmatch(text); m != nil {
		fields.CardNumber = model.Some(strings.ToUpper(m[1]))
	}
	for _, name := range manufacturers {
		if strings.Contains(lower, strings.ToLower(name)) {
			fields.Manufacturer = model.Some(name)
			break
		}
	}

	confidence := 0.0
	found := 0
	for _, f := range model.AllFields {
		if fields.Has(f) {
			found++
		}
	}
	if found > 0 {
		confidence = min(ocrMaxConfidence, ocrBaseConfidence+ocrFieldStep*float64(found))
	}
	return model.ProviderAttempt{Fields: fields, Confidence: confidence}
}
