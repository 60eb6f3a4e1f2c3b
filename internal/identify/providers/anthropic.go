package providers

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/Veraticus/collectorstream/internal/model"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider calls the Anthropic messages API.
type anthropicProvider struct {
	apiKey    string
	url       string
	model     string
	transport
	maxTokens int
}

func newAnthropic(cfg Config, logger *slog.Logger) *anthropicProvider {
	return &anthropicProvider{
		transport: newTransport(NameAnthropic, cfg, logger),
		apiKey:    cfg.Anthropic.APIKey,
		url:       orDefault(cfg.Anthropic.BaseURL, DefaultAnthropicURL) + "/v1/messages",
		model:     orDefault(cfg.Anthropic.Model, DefaultAnthropicModel),
		maxTokens: maxTokensOr(cfg.Anthropic.MaxTokens),
	}
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Attempt sends the card images and extraction prompt.
func (p *anthropicProvider) Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	content := []map[string]any{imageBlock(req.Front)}
	if req.HasBack() {
		content = append(content, imageBlock(req.Back))
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": buildPrompt(req.SportHint, req.HasBack()),
	})

	requestBody := map[string]any{
		"model":      p.model,
		"max_tokens": p.maxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
	body, err := p.postJSON(ctx, p.url, p.headers(), requestBody)
	if err != nil {
		return model.ProviderAttempt{}, err
	}

	var response anthropicResponse
	if err := p.decode(body, &response); err != nil {
		return model.ProviderAttempt{}, err
	}

	for _, block := range response.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		attempt, err := parseVLMResponse(block.Text)
		if err != nil {
			return model.ProviderAttempt{}, p.badResponse("%w", err)
		}
		return attempt, nil
	}
	return model.ProviderAttempt{}, p.badResponse("no text content returned")
}

func (p *anthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func imageBlock(jpeg []byte) map[string]any {
	return map[string]any{
		"type": "image",
		"source": map[string]string{
			"type":       "base64",
			"media_type": "image/jpeg",
			"data":       base64.StdEncoding.EncodeToString(jpeg),
		},
	}
}
