// Package openai adapts OpenAI-compatible chat-completion endpoints to
// ports.ModelClient.
//
// Structured calls send the contract's JSON schema as a strict
// response_format and validate the response against it before the caller
// sees anything. Transport faults (timeouts, rate limits, 5xx) surface as
// *ports.ModelError; contract violations surface as *schema.ViolationError
// and must not be retried as if they were transient.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/quarrydata/quarry/pkg/ports"
)

// DefaultModel works against api.openai.com. Deployments pointing at an
// OpenAI-compatible gateway override it in configuration.
const DefaultModel = "gpt-4o"

const defaultRequestTimeout = 120 * time.Second

// Client calls one chat-completions endpoint with one configured model.
type Client struct {
	api    *sdk.Client
	model  string
	logger *slog.Logger

	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures the Client.
type Option func(*Client)

// WithModel sets the model identifier sent on every call.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithRequestTimeout bounds each HTTP request. Callers usually also pass a
// per-call context deadline; this is the outer safety net.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRetries overrides the SDK's transport-level retry count.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// New builds a Client. The zero option set talks to api.openai.com with
// DefaultModel.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		model:      DefaultModel,
		logger:     slog.New(slog.DiscardHandler),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		maxRetries: -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	reqOpts := []option.RequestOption{option.WithHTTPClient(c.httpClient)}
	if c.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(c.apiKey))
	}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	if c.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(c.maxRetries))
	}
	api := sdk.NewClient(reqOpts...)
	c.api = &api
	return c
}

// Invoke runs one structured call. The response is validated against
// req.Contract and decoded into req.Out; on any error req.Out is untouched.
func (c *Client) Invoke(ctx context.Context, req ports.InvokeRequest) error {
	if req.Contract == nil || req.Out == nil {
		return errors.New("openai: invoke requires a contract and an output target")
	}
	schemaDoc, err := req.Contract.JSONSchema()
	if err != nil {
		return err
	}

	params := c.params(req.System, req.User, req.Temperature)
	params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        req.Contract.Name,
				Description: sdk.String(req.Contract.Description),
				Schema:      schemaDoc,
				Strict:      sdk.Bool(true),
			},
		},
	}

	content, err := c.call(ctx, req.Name, params)
	if err != nil {
		return err
	}
	return req.Contract.DecodeJSON(content, req.Out)
}

// Complete runs one free-text call and returns the model's prose.
func (c *Client) Complete(ctx context.Context, req ports.CompleteRequest) (string, error) {
	content, err := c.call(ctx, req.Name, c.params(req.System, req.User, req.Temperature))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", &ports.ModelError{Kind: ports.ModelTransport, Err: errors.New("response carried no content")}
	}
	return content, nil
}

func (c *Client) params(system, user string, temperature float64) sdk.ChatCompletionNewParams {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		msgs = append(msgs, sdk.SystemMessage(system))
	}
	msgs = append(msgs, sdk.UserMessage(user))
	return sdk.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    msgs,
		Temperature: sdk.Opt(temperature),
	}
}

func (c *Client) call(ctx context.Context, name string, params sdk.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &ports.ModelError{Kind: ports.ModelTransport, Err: errors.New("response carried no choices")}
	}

	c.logger.Debug("model call finished",
		"call", name,
		"model", c.model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// classify folds SDK and transport errors into the recoverable ModelError
// taxonomy. Everything that is not an API status is a transport fault.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := ports.ModelTransport
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			kind = ports.ModelRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = ports.ModelTimeout
		}
		return &ports.ModelError{Kind: kind, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &ports.ModelError{Kind: ports.ModelTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ports.ModelError{Kind: ports.ModelTimeout, Err: err}
	}
	return &ports.ModelError{Kind: ports.ModelTransport, Err: err}
}
