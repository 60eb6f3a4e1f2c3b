package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

// DefaultOverallConfidence is used when a model omits overallConfidence.
const DefaultOverallConfidence = 0.5

var errNoJSON = errors.New("no JSON object in response")

// cleanMarkdownWrapper strips code fences and any prose around the JSON
// object a model returned.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// flexString accepts a JSON string or number; models send years both ways.
type flexString struct {
	model.Optional[string]
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Optional = model.None[string]()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Optional = cleanValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	f.Optional = model.Some(n.String())
	return nil
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// flexFloat accepts a JSON number or a price string such as "$12.50".
type flexFloat struct {
	model.Optional[float64]
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Optional = model.None[float64]()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		f.Optional = model.Some(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or string, got %s", data)
	}
	match := numberPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if match == "" {
		f.Optional = model.None[float64]()
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return err
	}
	f.Optional = model.Some(v)
	return nil
}

// placeholders are values models send when they mean "not visible".
var placeholders = map[string]bool{
	"":        true,
	"null":    true,
	"none":    true,
	"n/a":     true,
	"na":      true,
	"unknown": true,
	"-":       true,
}

func cleanValue(s string) model.Optional[string] {
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return model.None[string]()
	}
	return model.Some(s)
}

type vlmResponse struct {
	FieldConfidence   map[string]float64 `json:"fieldConfidence"`
	OverallConfidence *float64           `json:"overallConfidence"`
	Grading           *struct {
		Company    flexString `json:"company"`
		Grade      flexString `json:"grade"`
		CertNumber flexString `json:"certNumber"`
	} `json:"grading"`
	VisualCues *struct {
		BorderColor  flexString `json:"borderColor"`
		FoilPattern  flexString `json:"foilPattern"`
		SerialNumber flexString `json:"serialNumber"`
		RookieLogo   bool       `json:"rookieLogo"`
		Autograph    bool       `json:"autograph"`
		Relic        bool       `json:"relic"`
	} `json:"visualCues"`
	PlayerName      flexString `json:"playerName"`
	Team            flexString `json:"team"`
	Year            flexString `json:"year"`
	Set             flexString `json:"set"`
	CardNumber      flexString `json:"cardNumber"`
	Manufacturer    flexString `json:"manufacturer"`
	Sport           flexString `json:"sport"`
	ParallelVariant flexString `json:"parallelVariant"`
	EstimatedValue  flexFloat  `json:"estimatedValue"`
}

// parseVLMResponse turns a model's text reply into an attempt. Field scores
// the model left out are filled in by the chain.
func parseVLMResponse(content string) (model.ProviderAttempt, error) {
	content = cleanMarkdownWrapper(content)
	if !strings.HasPrefix(content, "{") {
		return model.ProviderAttempt{}, errNoJSON
	}

	var resp vlmResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return model.ProviderAttempt{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	fields := &model.CardFields{
		PlayerName:      resp.PlayerName.Optional,
		Team:            resp.Team.Optional,
		Year:            resp.Year.Optional,
		Set:             resp.Set.Optional,
		CardNumber:      resp.CardNumber.Optional,
		Manufacturer:    resp.Manufacturer.Optional,
		ParallelVariant: resp.ParallelVariant.Optional,
		EstimatedValue:  resp.EstimatedValue.Optional,
	}
	if raw, ok := resp.Sport.Get(); ok {
		fields.Sport, fields.SportProvenance = model.NormalizeSport(raw)
	}
	if g := resp.Grading; g != nil {
		grading := &model.Grading{
			Company:    g.Company.Optional,
			Grade:      g.Grade.Optional,
			CertNumber: g.CertNumber.Optional,
		}
		if !grading.Empty() {
			fields.Grading = grading
		}
	}
	if c := resp.VisualCues; c != nil {
		fields.VisualCues = &model.VisualCues{
			BorderColor:  c.BorderColor.Optional,
			FoilPattern:  c.FoilPattern.Optional,
			SerialNumber: c.SerialNumber.Optional,
			RookieLogo:   c.RookieLogo,
			Autograph:    c.Autograph,
			Relic:        c.Relic,
		}
	}

	fieldConf := make(map[model.Field]float64, len(resp.FieldConfidence))
	for _, f := range model.AllFields {
		if v, ok := resp.FieldConfidence[string(f)]; ok {
			fieldConf[f] = v
		}
	}

	confidence := DefaultOverallConfidence
	if resp.OverallConfidence != nil {
		confidence = *resp.OverallConfidence
	}

	return model.ProviderAttempt{
		Fields:          fields,
		FieldConfidence: fieldConf,
		Confidence:      confidence,
	}, nil
}
