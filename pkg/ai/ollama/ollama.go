package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// ProspectOllamaClient implements ai.ProspectAIClient against an Ollama
// server (local or hosted behind a bearer token).
type ProspectOllamaClient struct {
	chatModel      string
	embeddingModel string
	embeddingDim   int

	reqLock *semaphore.Weighted
	timeout time.Duration

	metrics *metrics.Metrics

	Client *api.Client
}

// NewProspectOllamaClientParams contains configuration options for creating
// a new ProspectOllamaClient.
type NewProspectOllamaClientParams struct {
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration

	// Metrics receives token usage; nil means metrics.Default.
	Metrics *metrics.Metrics
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewProspectOllamaClient connects to the Ollama server at BaseURL (or the
// library default when empty).
func NewProspectOllamaClient(
	params NewProspectOllamaClientParams,
) (*ProspectOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	dim := params.EmbeddingDim
	if dim <= 0 {
		dim = defaultDimensions
	}

	if params.Metrics == nil {
		params.Metrics = metrics.Default
	}

	return &ProspectOllamaClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embeddingDim:   dim,

		reqLock: semaphore.NewWeighted(maxReq),
		timeout: timeout,

		metrics: params.Metrics,

		Client: api.NewClient(u, httpClient),
	}, nil
}
