package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// Classification is the model's reading of a merchant reply.
type Classification struct {
	State     models.OutreachState `json:"state"`
	Reason    string               `json:"reason"`
	Confident bool                 `json:"confident"`
}

// Client wraps the Anthropic API for reply classification.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildClassifyPrompt constructs the system and user prompts for reply classification.
func buildClassifyPrompt(merchant string, channel models.Channel, reply string) (system string, user string) {
	system = `You read replies from merchants who were asked whether they accept Bitcoin payments. Return ONLY a JSON object with these fields:
- "state": one of "confirmed", "denied", "no_response"
- "reason": one short sentence quoting or paraphrasing the part of the reply that decided the state
- "confident": true if the reply is unambiguous, false otherwise

Rules:
- "confirmed" means the merchant says they currently accept Bitcoin, Lightning or on-chain payments
- "denied" means the merchant says they do not, or no longer, accept Bitcoin
- Use "no_response" for replies that do not answer the question (auto-replies, questions back, unrelated text)
- Accepting other cryptocurrencies only does not count as confirmed
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if merchant != "" {
		sb.WriteString("Merchant: ")
		sb.WriteString(merchant)
		sb.WriteString("\n")
	}
	sb.WriteString("Channel: ")
	sb.WriteString(string(channel))
	sb.WriteString("\n\nReply:\n")
	sb.WriteString(reply)
	user = sb.String()
	return
}

// ClassifyReply asks the model whether a reply confirms or denies Bitcoin acceptance.
func (c *Client) ClassifyReply(ctx context.Context, merchant string, channel models.Channel, reply string) (*Classification, error) {
	systemPrompt, userPrompt := buildClassifyPrompt(merchant, channel, reply)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseClassification(text)
}

func parseClassification(text string) (*Classification, error) {
	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var c Classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	switch c.State {
	case models.OutreachConfirmed, models.OutreachDenied, models.OutreachNoResponse:
	default:
		return nil, fmt.Errorf("unexpected state %q in LLM response", c.State)
	}
	return &c, nil
}
