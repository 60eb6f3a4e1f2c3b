package providers

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/Veraticus/collectorstream/internal/model"
)

// ximilarProvider is the generic computer-vision backup.
type ximilarProvider struct {
	apiKey string
	url    string
	transport
}

func newXimilar(cfg Config, logger *slog.Logger) *ximilarProvider {
	return &ximilarProvider{
		transport: newTransport(NameXimilar, cfg, logger),
		apiKey:    cfg.Ximilar.APIKey,
		url:       orDefault(cfg.Ximilar.BaseURL, DefaultXimilarURL) + "/collectibles/v2/sport_id",
	}
}

type ximilarResponse struct {
	Records []struct {
		Objects []struct {
			Name string   `json:"name"`
			Prob *float64 `json:"prob"`
		} `json:"_objects"`
	} `json:"records"`
}

// Attempt sends the front image. The service only names the player.
func (p *ximilarProvider) Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	requestBody := map[string]any{
		"records": []map[string]string{
			{"_base64": base64.StdEncoding.EncodeToString(req.Front)},
		},
	}
	headers := map[string]string{"Authorization": "Token " + p.apiKey}

	body, err := p.postJSON(ctx, p.url, headers, requestBody)
	if err != nil {
		return model.ProviderAttempt{}, err
	}

	var response ximilarResponse
	if err := p.decode(body, &response); err != nil {
		return model.ProviderAttempt{}, err
	}
	if len(response.Records) == 0 {
		return model.ProviderAttempt{}, p.badResponse("no records returned")
	}

	fields := &model.CardFields{}
	confidence := DefaultOverallConfidence
	// The most specific object comes last.
	for _, obj := range response.Records[0].Objects {
		if name := cleanValue(obj.Name); name.IsSome() {
			fields.PlayerName = name
			if obj.Prob != nil {
				confidence = *obj.Prob
			}
		}
	}

	fieldConf := map[model.Field]float64{}
	if fields.PlayerName.IsSome() {
		fieldConf[model.FieldPlayerName] = confidence
	} else {
		confidence = 0
	}
	return model.ProviderAttempt{
		Fields:          fields,
		FieldConfidence: fieldConf,
		Confidence:      confidence,
	}, nil
}
