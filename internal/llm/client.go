package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// Client issues chat completions through the routing table. One underlying
// HTTP client per endpoint; the model is chosen per call by task.
type Client struct {
	apiKey   string
	baseURL  string
	referer  string
	appTitle string
	override string // when set, every task routes to this model
	log      zerolog.Logger

	clients map[string]*oai.Client
}

// Options configures the LLM client.
type Options struct {
	APIKey        string
	BaseURL       string // overrides every route's endpoint when set
	ModelOverride string // overrides every route's model when set
	Referer       string // injected as HTTP-Referer where the endpoint wants it
	AppTitle      string // injected as X-Title
	Log           zerolog.Logger
}

// New creates the routed client.
func New(opts Options) *Client {
	return &Client{
		apiKey:   opts.APIKey,
		baseURL:  opts.BaseURL,
		referer:  opts.Referer,
		appTitle: opts.AppTitle,
		override: opts.ModelOverride,
		log:      opts.Log.With().Str("component", "llm").Logger(),
		clients:  make(map[string]*oai.Client),
	}
}

func (c *Client) clientFor(baseURL string) *oai.Client {
	if c.baseURL != "" {
		baseURL = c.baseURL
	}
	if cl, ok := c.clients[baseURL]; ok {
		return cl
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: 90 * time.Second}),
	}
	// Aggregator endpoints want attribution headers on every request.
	if c.referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", c.referer))
	}
	if c.appTitle != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", c.appTitle))
	}

	cl := oai.NewClient(reqOpts...)
	c.clients[baseURL] = &cl
	return &cl
}

// CompleteRequest is one chat completion bound to a task route.
type CompleteRequest struct {
	Task         string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// Complete runs the completion on the task's routed model and returns the
// message content.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	route := RouteForTask(req.Task)
	model := route.Model
	if c.override != "" {
		model = c.override
	}

	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	start := time.Now()
	resp, err := c.clientFor(route.BaseURL).Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm %s (%s): %w", req.Task, model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm %s (%s): empty choices", req.Task, model)
	}

	c.log.Debug().
		Str("task", req.Task).
		Str("model", model).
		Dur("elapsed", time.Since(start)).
		Msg("completion")
	return resp.Choices[0].Message.Content, nil
}
