package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/model"
)

func sampleResult() *model.IdentificationResult {
	chosen := model.ProviderAttempt{
		Provider:   "openai",
		Confidence: 0.82,
		Duration:   1234567 * time.Microsecond,
		Fields: &model.CardFields{
			PlayerName:      model.Some("Michael Jordan"),
			Year:            model.Some("1986"),
			Sport:           model.Some(model.SportBasketball),
			SportProvenance: model.Some("wnba"),
		},
	}
	return &model.IdentificationResult{
		Chosen: &chosen,
		Attempts: []model.ProviderAttempt{
			{Provider: "cardsight", Err: errors.New("no match"), Duration: 300 * time.Millisecond},
			chosen,
		},
		LowConfidenceFields: []model.Field{model.FieldYear},
		NeedsVerification:   true,
	}
}

func TestRenderResult(t *testing.T) {
	out := renderResult(sampleResult())

	assert.Contains(t, out, "Identified by openai (82%)")
	assert.Contains(t, out, "Michael Jordan")
	assert.Contains(t, out, "basketball (wnba)")
	assert.Contains(t, out, "check")
	assert.Contains(t, out, "below the confidence threshold")
	assert.Contains(t, out, "no match")
	assert.Contains(t, out, "1.235s")
}

func TestRenderResultExhausted(t *testing.T) {
	out := renderResult(&model.IdentificationResult{
		Attempts:  []model.ProviderAttempt{{Provider: "tesseract", Err: errors.New("no text")}},
		Exhausted: true,
	})

	assert.Contains(t, out, "No provider identified this card")
	assert.Contains(t, out, "tesseract")
}

func TestResultJSON(t *testing.T) {
	out := resultJSONOf(sampleResult())

	require.NotNil(t, out.Chosen)
	assert.Equal(t, "openai", out.Chosen.Provider)
	assert.Equal(t, int64(1234), out.Chosen.DurationMS)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, "no match", out.Attempts[0].Error)
	assert.Nil(t, out.Attempts[0].Fields)
	assert.Empty(t, out.Attempts[1].Error)
	assert.Equal(t, []model.Field{model.FieldYear}, out.LowConfidenceFields)
	assert.True(t, out.NeedsVerification)
	assert.False(t, out.Exhausted)
}
