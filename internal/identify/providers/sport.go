package providers

import (
	"context"
	"log/slog"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/identify"
	"github.com/Veraticus/collectorstream/internal/model"
)

// Small, cheap models answer the one-word sport question.
const (
	DefaultSportOpenAIModel    = "gpt-4o-mini"
	DefaultSportAnthropicModel = "claude-3-haiku-20240307"
	sportMaxTokens             = 10
)

const sportPrompt = `Look at this sports trading card. What sport is it?
Respond with ONLY ONE WORD from: baseball, basketball, football, hockey, soccer

If you see WNBA branding or women's basketball, respond: basketball`

// sportDetector asks a vision model for the sport shown on a card front.
// It prefers OpenAI and falls back to Anthropic when only that key is set.
type sportDetector struct {
	openai    *chatProvider
	anthropic *anthropicProvider
}

// BuildSportDetector returns a detector backed by the first configured
// vision key, or nil when neither OpenAI nor Anthropic is configured.
func BuildSportDetector(cfg Config, logger *slog.Logger) identify.SportDetector {
	logger = common.ComponentLogger(logger, "providers")
	cfg = withDefaults(cfg)

	switch {
	case cfg.OpenAI.APIKey != "":
		p := newOpenAI(cfg, logger)
		p.model = DefaultSportOpenAIModel
		p.maxTokens = sportMaxTokens
		return &sportDetector{openai: p}
	case cfg.Anthropic.APIKey != "":
		p := newAnthropic(cfg, logger)
		p.model = DefaultSportAnthropicModel
		p.maxTokens = sportMaxTokens
		return &sportDetector{anthropic: p}
	}
	logger.Info("sport detection disabled without an OpenAI or Anthropic key")
	return nil
}

// DetectSport implements identify.SportDetector. Answers outside the
// supported sports come back as None.
func (d *sportDetector) DetectSport(ctx context.Context, front []byte) (model.Optional[model.Sport], error) {
	var (
		answer string
		err    error
	)
	if d.openai != nil {
		answer, err = d.openai.ask(ctx, front, sportPrompt)
	} else {
		answer, err = d.anthropic.ask(ctx, front, sportPrompt)
	}
	if err != nil {
		return model.None[model.Sport](), err
	}
	sport, _ := model.NormalizeSport(answer)
	return sport, nil
}

// ask sends one image and a short prompt and returns the raw reply text.
func (p *chatProvider) ask(ctx context.Context, jpeg []byte, prompt string) (string, error) {
	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				imageURLPart(jpeg),
				{"type": "text", "text": prompt},
			},
		}},
		"max_tokens": p.maxTokens,
	}

	body, err := p.postJSON(ctx, p.url, p.headers, requestBody)
	if err != nil {
		return "", err
	}
	var response chatResponse
	if err := p.decode(body, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", p.badResponse("no completion choices returned")
	}
	return response.Choices[0].Message.Content, nil
}

// ask sends one image and a short prompt and returns the raw reply text.
func (p *anthropicProvider) ask(ctx context.Context, jpeg []byte, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":      p.model,
		"max_tokens": p.maxTokens,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				imageBlock(jpeg),
				{"type": "text", "text": prompt},
			},
		}},
	}

	body, err := p.postJSON(ctx, p.url, p.headers(), requestBody)
	if err != nil {
		return "", err
	}
	var response anthropicResponse
	if err := p.decode(body, &response); err != nil {
		return "", err
	}
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", p.badResponse("no text content returned")
}
