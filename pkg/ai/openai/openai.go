package openai

import (
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// ProspectOpenAIClient talks to an OpenAI compatible API. It keeps separate
// clients for chat completions and embeddings so both can point at
// different deployments.
//
// A ProspectOpenAIClient should be created using NewProspectOpenAIClient.
type ProspectOpenAIClient struct {
	chatModel      string
	embeddingModel string
	embeddingDim   int

	chatURL string

	reqLock *semaphore.Weighted
	timeout time.Duration

	metrics *metrics.Metrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewProspectOpenAIClientParams defines the configuration parameters for
// creating a new ProspectOpenAIClient.
//
// ChatModel is the default completion model; callers may override it per
// request with ai.WithModel. EmbeddingDim truncates or pads vectors to a fixed
// length. Timeout bounds each single request.
type NewProspectOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	MaxConcurrentRequests int64
	Timeout               time.Duration

	// Metrics receives token usage; nil means metrics.Default.
	Metrics *metrics.Metrics
}

// NewProspectOpenAIClient creates and returns a new client configured with
// the provided parameters.
//
// Example:
//
//	client := openai.NewProspectOpenAIClient(openai.NewProspectOpenAIClientParams{
//		ChatModel:      "gpt-4o-mini",
//		EmbeddingModel: "text-embedding-3-small",
//		EmbeddingDim:   1536,
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewProspectOpenAIClient(
	params NewProspectOpenAIClientParams,
) *ProspectOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 15
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	dim := params.EmbeddingDim
	if dim <= 0 {
		dim = defaultDimensions
	}

	return &ProspectOpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embeddingDim:   dim,

		chatURL: params.ChatURL,

		reqLock: semaphore.NewWeighted(maxReq),
		timeout: timeout,

		metrics: orDefaultMetrics(params.Metrics),

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// a single attempt per call; fallbacks are handled by the caller
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func orDefaultMetrics(m *metrics.Metrics) *metrics.Metrics {
	if m == nil {
		return metrics.Default
	}
	return m
}
