package providers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/model"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare", input: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", input: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", input: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "prose around", input: "Here you go:\n{\"a\": 1}\nHope that helps", want: `{"a": 1}`},
		{name: "no object", input: "sorry", want: "sorry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseVLMResponse(t *testing.T) {
	t.Run("defaults overall confidence", func(t *testing.T) {
		attempt, err := parseVLMResponse(`{"playerName": "Bo Jackson"}`)
		require.NoError(t, err)
		assert.InDelta(t, DefaultOverallConfidence, attempt.Confidence, 1e-9)
		assert.Empty(t, attempt.FieldConfidence)
	})

	t.Run("placeholders are unknown", func(t *testing.T) {
		attempt, err := parseVLMResponse(`{"playerName": "Unknown", "team": "", "year": "N/A", "set": null}`)
		require.NoError(t, err)
		for _, f := range []model.Field{model.FieldPlayerName, model.FieldTeam, model.FieldYear, model.FieldSet} {
			assert.False(t, attempt.Fields.Has(f), f)
		}
	})

	sports := []struct {
		name           string
		raw            string
		wantSport      model.Optional[model.Sport]
		wantProvenance model.Optional[string]
	}{
		{name: "canonical", raw: "hockey", wantSport: model.Some(model.SportHockey)},
		{name: "league alias", raw: "WNBA", wantSport: model.Some(model.SportBasketball), wantProvenance: model.Some("WNBA")},
		{name: "unsupported keeps raw value", raw: " Golf ", wantProvenance: model.Some("Golf")},
		{name: "cricket", raw: "cricket", wantProvenance: model.Some("cricket")},
	}
	for _, tt := range sports {
		t.Run("sport "+tt.name, func(t *testing.T) {
			attempt, err := parseVLMResponse(`{"sport": "` + tt.raw + `"}`)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSport, attempt.Fields.Sport)
			assert.Equal(t, tt.wantProvenance, attempt.Fields.SportProvenance)
		})
	}

	t.Run("grading kept only when present", func(t *testing.T) {
		attempt, err := parseVLMResponse(`{"grading": {"company": "PSA", "grade": 10}}`)
		require.NoError(t, err)
		require.NotNil(t, attempt.Fields.Grading)
		assert.Equal(t, "10", attempt.Fields.Grading.Grade.OrElse(""))

		attempt, err = parseVLMResponse(`{"grading": {"company": null}}`)
		require.NoError(t, err)
		assert.Nil(t, attempt.Fields.Grading)
	})

	t.Run("price strings", func(t *testing.T) {
		attempt, err := parseVLMResponse(`{"estimatedValue": "$1,250.50"}`)
		require.NoError(t, err)
		assert.InDelta(t, 1250.5, attempt.Fields.EstimatedValue.OrElse(0), 1e-9)

		attempt, err = parseVLMResponse(`{"estimatedValue": "priceless"}`)
		require.NoError(t, err)
		assert.False(t, attempt.Fields.EstimatedValue.IsSome())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseVLMResponse("I could not identify this card.")
		assert.ErrorIs(t, err, errNoJSON)
	})
}

func TestBuildPrompt(t *testing.T) {
	front := buildPrompt(model.None[model.Sport](), false)
	assert.Contains(t, front, "one image")
	assert.Contains(t, front, "determine its sport")
	assert.NotContains(t, front, "prefer it for those fields")

	both := buildPrompt(model.Some(model.SportHockey), true)
	assert.Contains(t, both, "two images")
	assert.Contains(t, both, "hockey card")
	assert.True(t, strings.Contains(both, "overallConfidence"))
}

func TestParseOCRText(t *testing.T) {
	text := "No. 150\nRC\n© 1989 THE UPPER DECK COMPANY\nPrinted in USA"
	attempt := parseOCRText(text)
	assert.Equal(t, "1989", attempt.Fields.Year.OrElse(""))
	assert.Equal(t, "150", attempt.Fields.CardNumber.OrElse(""))
	assert.Equal(t, "Upper Deck", attempt.Fields.Manufacturer.OrElse(""))
	assert.InDelta(t, ocrMaxConfidence, attempt.Confidence, 1e-9)

	empty := parseOCRText("   ")
	assert.Zero(t, empty.Confidence)
	assert.NotNil(t, empty.Fields)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.tryAcquire())
	assert.True(t, rl.tryAcquire())
	assert.False(t, rl.tryAcquire())

	now = now.Add(31 * time.Second)
	assert.True(t, rl.tryAcquire())
	assert.False(t, rl.tryAcquire())

	rl.reset()
	assert.True(t, rl.tryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rl.tokens = 0
	assert.ErrorIs(t, rl.wait(ctx), context.Canceled)
}
