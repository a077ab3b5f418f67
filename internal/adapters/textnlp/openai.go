package textnlp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"review_radar/internal/adapters/observability"
)

const sentimentPrompt = "You rate the sentiment of app and movie reviews, usually written in Chinese. " +
	"Reply with a single number between 0 and 1: 0 is very negative, 0.5 is neutral, 1 is very positive. " +
	"Reply with the number only."

// OpenAIScorer asks a chat model for a sentiment score.
type OpenAIScorer struct {
	client openai.Client
	model  string
}

func NewOpenAIScorer(apiKey, model string, opts ...option.RequestOption) (*OpenAIScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIScorer{client: openai.NewClient(opts...), model: model}, nil
}

func (s *OpenAIScorer) Score(ctx context.Context, text string) (float64, error) {
	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(sentimentPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(8),
	})
	status := 200
	if err != nil {
		status = 0
	}
	observability.ObserveExternal("openai", "chat.completions", status, time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no response from openai")
	}
	return parseScore(resp.Choices[0].Message.Content)
}

func parseScore(reply string) (float64, error) {
	f := strings.Fields(strings.TrimSpace(reply))
	if len(f) == 0 {
		return 0, fmt.Errorf("empty sentiment reply")
	}
	v, err := strconv.ParseFloat(strings.Trim(f[0], ".,;:\"'"), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable sentiment reply %q: %w", reply, err)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("sentiment reply %v outside [0,1]", v)
	}
	return v, nil
}
