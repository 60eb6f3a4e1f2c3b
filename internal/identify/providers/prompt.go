package providers

import (
	"fmt"
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

// buildPrompt returns the extraction prompt sent to every vision model.
func buildPrompt(sport model.Optional[model.Sport], hasBack bool) string {
	var b strings.Builder

	b.WriteString("You are an expert at identifying sports cards. ")
	if hasBack {
		b.WriteString("You are given two images: the FRONT of the card first, then the BACK.\n\n")
	} else {
		b.WriteString("You are given one image: the FRONT of the card.\n\n")
	}

	if s, ok := sport.Get(); ok {
		fmt.Fprintf(&b, "Analyze this %s card.", s)
	} else {
		b.WriteString("Analyze this sports card and determine its sport.")
	}
	if hasBack {
		b.WriteString(" The back usually carries the card number, copyright year, manufacturer and set name; prefer it for those fields.")
	}
	b.WriteString("\n\n")

	b.WriteString(`CRITICAL INSTRUCTIONS:
1. Read printed text exactly. Do not guess a player from appearance alone.
2. The card year is the season or copyright year printed on the card, not the player's rookie year.
3. The set is the product line (e.g. "Prizm", "Chrome", "Series 1"), without the manufacturer.
4. Card numbers keep their prefixes and suffixes (e.g. "RC-12", "BDC-150").
5. Parallels are identified by border color, foil pattern or a serial number like 23/99.
6. If a value is not visible, use null. Never invent values.
7. Score each field from 0.0 to 1.0 by how certain you are.

Respond with ONLY this JSON:
{
  "playerName": "string or null",
  "team": "string or null",
  "year": "string or null",
  "set": "string or null",
  "cardNumber": "string or null",
  "manufacturer": "string or null",
  "sport": "baseball|basketball|football|hockey|soccer or league name, or null",
  "parallelVariant": "string or null",
  "estimatedValue": number or null,
  "grading": {"company": "string or null", "grade": "string or null", "certNumber": "string or null"} or null,
  "visualCues": {
    "borderColor": "string or null",
    "foilPattern": "string or null",
    "serialNumber": "string or null",
    "rookieLogo": true/false,
    "autograph": true/false,
    "relic": true/false
  },
  "fieldConfidence": {
    "playerName": 0.0, "team": 0.0, "year": 0.0, "set": 0.0, "cardNumber": 0.0,
    "manufacturer": 0.0, "sport": 0.0, "grading": 0.0, "estimatedValue": 0.0
  },
  "overallConfidence": 0.0
}

EXAMPLES:
- A 2018 Topps Update Shohei Ohtani rookie #US1: {"playerName": "Shohei Ohtani", "team": "Los Angeles Angels", "year": "2018", "set": "Update", "cardNumber": "US1", "manufacturer": "Topps", "sport": "baseball", ...}
- A 2024 Panini Prizm WNBA Caitlin Clark silver: {"playerName": "Caitlin Clark", "team": "Indiana Fever", "year": "2024", "set": "Prizm WNBA", "manufacturer": "Panini", "sport": "wnba", "parallelVariant": "Silver", ...}

RULES:
- Output must start with { and end with }.
- overallConfidence reflects how sure you are the whole identification is right.
- Only fill grading when the card is in a graded slab.`)

	return b.String()
}
