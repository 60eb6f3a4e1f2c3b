package providers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

// CardSight confidence levels.
var cardSightConfidence = map[string]float64{
	"high":   0.9,
	"medium": 0.7,
	"low":    0.5,
}

// noDetectionConfidence scores a response that found no card.
const noDetectionConfidence = 0.3

// cardSightProvider calls the specialized card-vision service.
type cardSightProvider struct {
	apiKey  string
	baseURL string
	transport
}

func newCardSight(cfg Config, logger *slog.Logger) *cardSightProvider {
	return &cardSightProvider{
		transport: newTransport(NameCardSight, cfg, logger),
		apiKey:    cfg.CardSight.APIKey,
		baseURL:   orDefault(cfg.CardSight.BaseURL, DefaultCardSightURL),
	}
}

type cardSightResponse struct {
	Detections []cardSightDetection `json:"detections"`
	Success    bool                 `json:"success"`
}

type cardSightDetection struct {
	Card             *cardSightCard `json:"card"`
	AIIdentification *struct {
		Name    flexString `json:"name"`
		Year    flexString `json:"year"`
		Set     flexString `json:"set"`
		Number  flexString `json:"number"`
		Release flexString `json:"release"`
	} `json:"aiIdentification"`
	Confidence string `json:"confidence"`
}

type cardSightCard struct {
	Parallel *struct {
		Name       flexString `json:"name"`
		NumberedTo flexString `json:"numberedTo"`
	} `json:"parallel"`
	Name         flexString `json:"name"`
	Year         flexString `json:"year"`
	SetName      flexString `json:"setName"`
	Number       flexString `json:"number"`
	Manufacturer flexString `json:"manufacturer"`
	ReleaseName  flexString `json:"releaseName"`
}

// segment picks the service's sport catalog.
func segment(hint model.Optional[model.Sport]) string {
	return string(hint.OrElse(model.SportBaseball))
}

// Attempt uploads the front image.
func (p *cardSightProvider) Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="card.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return model.ProviderAttempt{}, p.badResponse("failed to build upload: %w", err)
	}
	if _, err := part.Write(req.Front); err != nil {
		return model.ProviderAttempt{}, p.badResponse("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return model.ProviderAttempt{}, p.badResponse("failed to build upload: %w", err)
	}
	payload := buf.Bytes()
	contentType := w.FormDataContentType()
	url := fmt.Sprintf("%s/v1/identify/card/%s", p.baseURL, segment(req.SportHint))

	body, err := p.do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", contentType)
		r.Header.Set("X-API-Key", p.apiKey)
		return r, nil
	})
	if err != nil {
		return model.ProviderAttempt{}, err
	}

	var response cardSightResponse
	if err := p.decode(body, &response); err != nil {
		return model.ProviderAttempt{}, err
	}
	if !response.Success {
		return model.ProviderAttempt{}, p.badResponse("identification unsuccessful")
	}
	if len(response.Detections) == 0 {
		return model.ProviderAttempt{
			Fields:     &model.CardFields{},
			Confidence: noDetectionConfidence,
		}, nil
	}
	return p.toAttempt(response.Detections[0], req.SportHint), nil
}

// toAttempt prefers catalog data over the service's own AI reading.
func (p *cardSightProvider) toAttempt(d cardSightDetection, hint model.Optional[model.Sport]) model.ProviderAttempt {
	confidence, ok := cardSightConfidence[strings.ToLower(d.Confidence)]
	if !ok {
		confidence = cardSightConfidence["low"]
	}

	fields := &model.CardFields{}
	if s, ok := hint.Get(); ok {
		fields.Sport = model.Some(s)
	}
	fieldConf := map[model.Field]float64{}

	switch {
	case d.Card != nil:
		c := d.Card
		fields.PlayerName = c.Name.Optional
		fields.Year = c.Year.Optional
		fields.CardNumber = c.Number.Optional
		fields.Manufacturer = c.Manufacturer.Optional
		fields.Set = joinSet(c.ReleaseName.Optional, c.SetName.Optional)
		if par := c.Parallel; par != nil {
			if name, ok := par.Name.Get(); ok {
				if n, ok := par.NumberedTo.Get(); ok {
					name = fmt.Sprintf("%s /%s", name, n)
				}
				fields.ParallelVariant = model.Some(name)
			}
		}
		// Catalog matches are as reliable as the match itself.
		for _, f := range model.AllFields {
			if fields.Has(f) && f != model.FieldSport {
				fieldConf[f] = confidence
			}
		}
	case d.AIIdentification != nil:
		ai := d.AIIdentification
		fields.PlayerName = ai.Name.Optional
		fields.Year = ai.Year.Optional
		fields.CardNumber = ai.Number.Optional
		fields.Set = joinSet(ai.Release.Optional, ai.Set.Optional)
	}

	return model.ProviderAttempt{
		Fields:          fields,
		FieldConfidence: fieldConf,
		Confidence:      confidence,
	}
}

// joinSet combines a release and set name: "Topps Chrome" + "Refractors".
func joinSet(release, set model.Optional[string]) model.Optional[string] {
	r, hasRelease := release.Get()
	s, hasSet := set.Get()
	switch {
	case hasRelease && hasSet:
		if strings.Contains(s, r) {
			return model.Some(s)
		}
		return model.Some(r + " " + s)
	case hasRelease:
		return release
	default:
		return set
	}
}
