package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/prospect/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const baseContextTokens = 4096

var jsonFormat = json.RawMessage(`"json"`)

// GenerateCompletion sends a single-turn prompt and returns assistant text.
// A schema is passed as the structured output format; plain JSON mode uses
// Ollama's "json" format.
func (c *ProspectOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.NewGenerateOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}, opts...)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	switch {
	case options.Schema != nil:
		format, err := json.Marshal(options.Schema.Schema)
		if err != nil {
			return "", err
		}
		req.Format = format
	case options.JSONMode:
		req.Format = jsonFormat
	}

	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}

	numCtx, err := contextSize(msgs)
	if err != nil {
		return "", err
	}
	if numCtx > baseContextTokens {
		req.Options["num_ctx"] = numCtx
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.DoneReason = cr.DoneReason
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.metrics.ObserveModelCall(providerName, options.Model, "chat",
		final.Metrics.PromptEvalCount, final.Metrics.EvalCount, final.Metrics.TotalDuration)

	if final.Message.Content == "" {
		return "", fmt.Errorf("empty response from model (done_reason: %s)", final.DoneReason)
	}
	return final.Message.Content, nil
}

// contextSize estimates the context window a request needs, with headroom
// for the reply.
func contextSize(msgs []api.Message) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	tokens := 1024
	for _, m := range msgs {
		tokens += len(enc.Encode(m.Content, nil, nil))
	}
	return tokens, nil
}
