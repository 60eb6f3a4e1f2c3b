package providers

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/Veraticus/collectorstream/internal/model"
)

// chatProvider speaks the OpenAI chat completions protocol, which OpenRouter
// also implements.
type chatProvider struct {
	headers   map[string]string
	url       string
	model     string
	transport
	maxTokens int
}

func newOpenAI(cfg Config, logger *slog.Logger) *chatProvider {
	return &chatProvider{
		transport: newTransport(NameOpenAI, cfg, logger),
		url:       orDefault(cfg.OpenAI.BaseURL, DefaultOpenAIURL) + "/v1/chat/completions",
		model:     orDefault(cfg.OpenAI.Model, DefaultOpenAIModel),
		maxTokens: maxTokensOr(cfg.OpenAI.MaxTokens),
		headers:   map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
	}
}

func newOpenRouter(cfg Config, modelName string, logger *slog.Logger) *chatProvider {
	return &chatProvider{
		transport: newTransport(NameOpenRouter+":"+modelName, cfg, logger),
		url:       orDefault(cfg.OpenRouter.BaseURL, DefaultOpenRouterURL) + "/v1/chat/completions",
		model:     modelName,
		maxTokens: DefaultMaxTokens,
		headers: map[string]string{
			"Authorization": "Bearer " + cfg.OpenRouter.APIKey,
			"X-Title":       "cardscan",
		},
	}
}

func maxTokensOr(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Attempt sends the card images and extraction prompt.
func (p *chatProvider) Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	content := []map[string]any{imageURLPart(req.Front)}
	if req.HasBack() {
		content = append(content, imageURLPart(req.Back))
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": buildPrompt(req.SportHint, req.HasBack()),
	})

	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"max_tokens":  p.maxTokens,
		"temperature": 0.1,
	}

	body, err := p.postJSON(ctx, p.url, p.headers, requestBody)
	if err != nil {
		return model.ProviderAttempt{}, err
	}

	var response chatResponse
	if err := p.decode(body, &response); err != nil {
		return model.ProviderAttempt{}, err
	}
	if len(response.Choices) == 0 {
		return model.ProviderAttempt{}, p.badResponse("no completion choices returned")
	}

	attempt, err := parseVLMResponse(response.Choices[0].Message.Content)
	if err != nil {
		return model.ProviderAttempt{}, p.badResponse("%w", err)
	}
	p.logger.Debug("vision model replied", "model", p.model, "confidence", attempt.Confidence)
	return attempt, nil
}

func imageURLPart(jpeg []byte) map[string]any {
	return map[string]any{
		"type": "image_url",
		"image_url": map[string]string{
			"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
		},
	}
}
