package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSport(t *testing.T) {
	tests := []struct {
		raw            string
		wantSport      Optional[Sport]
		wantProvenance Optional[string]
	}{
		{raw: "baseball", wantSport: Some(SportBaseball)},
		{raw: "  Hockey ", wantSport: Some(SportHockey)},
		{raw: "WNBA", wantSport: Some(SportBasketball), wantProvenance: Some("WNBA")},
		{raw: "wnba", wantSport: Some(SportBasketball), wantProvenance: Some("wnba")},
		{raw: "Women's Basketball", wantSport: Some(SportBasketball), wantProvenance: Some("Women's Basketball")},
		{raw: "NFL", wantSport: Some(SportFootball), wantProvenance: Some("NFL")},
		{raw: "ice   hockey", wantSport: Some(SportHockey), wantProvenance: Some("ice   hockey")},
		{raw: "MLS", wantSport: Some(SportSoccer), wantProvenance: Some("MLS")},
		{raw: "cricket", wantProvenance: Some("cricket")},
		{raw: " Golf ", wantProvenance: Some("Golf")},
		{raw: "Women's Lacrosse", wantProvenance: Some("Women's Lacrosse")},
		{raw: ""},
		{raw: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sport, provenance := NormalizeSport(tt.raw)
			assert.Equal(t, tt.wantSport, sport)
			assert.Equal(t, tt.wantProvenance, provenance)
		})
	}
}

func TestParseSport(t *testing.T) {
	sport, ok := ParseSport("nhl")
	assert.True(t, ok)
	assert.Equal(t, SportHockey, sport)

	_, ok = ParseSport("curling")
	assert.False(t, ok)

	for _, s := range Sports {
		parsed, ok := ParseSport(string(s))
		assert.True(t, ok, s)
		assert.Equal(t, s, parsed)
	}
}
