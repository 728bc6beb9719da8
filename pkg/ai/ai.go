package ai

import (
	"context"
)

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration

	JSONMode bool // Constrain the reply to a JSON object
	Schema   *ResponseSchema
}

// ResponseSchema constrains a completion to a JSON schema. Setting a schema
// implies JSON mode.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      any
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithJSONMode asks the model for a bare JSON object reply.
func WithJSONMode() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
	}
}

// WithSchema constrains the reply to the JSON schema generated from out.
// The raw text is still returned so callers can report unusable output.
func WithSchema(name, description string, out any) GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
		o.Schema = &ResponseSchema{
			Name:        name,
			Description: description,
			Schema:      GenerateSchema(out),
		}
	}
}

// NewGenerateOptions applies opts over the given defaults.
func NewGenerateOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// CompletionProvider produces a text completion for a single-turn prompt.
// A system prompt, temperature and JSON constraint are passed as options.
type CompletionProvider interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
}

// EmbeddingProvider converts text into fixed-length vectors, one per input,
// preserving input order.
type EmbeddingProvider interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// ProspectAIClient is the full client surface the server wires up. Token
// usage is exported through the metrics registry, not through the client.
type ProspectAIClient interface {
	CompletionProvider
	EmbeddingProvider

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}
