package model

import "strings"

// Sport is the closed set of sports a stored card can belong to.
type Sport string

// Supported sports.
const (
	SportBaseball   Sport = "baseball"
	SportBasketball Sport = "basketball"
	SportFootball   Sport = "football"
	SportHockey     Sport = "hockey"
	SportSoccer     Sport = "soccer"
)

// Sports lists every supported sport.
var Sports = []Sport{SportBaseball, SportBasketball, SportFootball, SportHockey, SportSoccer}

// sportAliases maps league names and common spellings onto a sport.
var sportAliases = map[string]Sport{
	"baseball":          SportBaseball,
	"mlb":               SportBaseball,
	"milb":              SportBaseball,
	"basketball":        SportBasketball,
	"nba":               SportBasketball,
	"wnba":              SportBasketball,
	"ncaab":             SportBasketball,
	"ncaaw":             SportBasketball,
	"womens basketball": SportBasketball,
	"football":          SportFootball,
	"nfl":               SportFootball,
	"ncaaf":             SportFootball,
	"american football": SportFootball,
	"hockey":            SportHockey,
	"nhl":               SportHockey,
	"ice hockey":        SportHockey,
	"soccer":            SportSoccer,
	"mls":               SportSoccer,
	"nwsl":              SportSoccer,
	"epl":               SportSoccer,
}

// NormalizeSport maps a raw provider value onto the closed sport set.
// The second return value is the provenance: the trimmed original value when
// it differs from the normalized sport ("wnba" for basketball), else None.
// Unrecognized values yield a None sport with the trimmed value as provenance.
func NormalizeSport(raw string) (Optional[Sport], Optional[string]) {
	trimmed := strings.TrimSpace(raw)
	key := strings.ToLower(trimmed)
	key = strings.ReplaceAll(key, "'", "")
	key = strings.ReplaceAll(key, "’", "")
	key = strings.Join(strings.Fields(key), " ")
	if key == "" {
		return None[Sport](), None[string]()
	}
	sport, ok := sportAliases[key]
	if !ok {
		return None[Sport](), Some(trimmed)
	}
	if key == string(sport) {
		return Some(sport), None[string]()
	}
	return Some(sport), Some(trimmed)
}

// ParseSport is like NormalizeSport but discards provenance.
func ParseSport(raw string) (Sport, bool) {
	s, _ := NormalizeSport(raw)
	return s.Get()
}
