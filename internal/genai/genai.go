// Package genai provides the intent classifier, field extractor, and fallback
// reply generator backed by the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// Error variables for better error handling and testability
var (
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrClientDisabled    = errors.New("genai client disabled")
)

// ClientInterface defines the classifier boundary the orchestrator depends
// on. Both operations are stateless from the caller's perspective; Classify
// falls back to models.IntentUnknown when the underlying model is unavailable
// or mis-configured.
type ClientInterface interface {
	// Classify maps a free-text user message to one of the closed intents.
	Classify(ctx context.Context, message string) (models.Intent, error)

	// ExtractFields pulls values for the named fields out of the message.
	// Fields the message does not mention are absent from the result.
	ExtractFields(ctx context.Context, message string, known []string) (map[string]string, error)

	// GenerateReply produces a free-form assistant reply. Used only for the
	// optional history summarization step.
	GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service for classification and
// extraction.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly instead of reading the
// environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient initializes a new GenAI client, reading OPENAI_API_KEY when no
// key option is supplied.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// classifySystemPrompt pins the model to the closed intent vocabulary.
func classifySystemPrompt() string {
	labels := make([]string, 0, len(models.AllIntents()))
	for _, intent := range models.AllIntents() {
		labels = append(labels, intent.String())
	}
	return fmt.Sprintf(
		"You classify messages sent to a patient scan record assistant. "+
			"Reply with exactly one of the following labels and nothing else: %s. "+
			"If none fits, reply %s.",
		strings.Join(labels, ", "), models.IntentUnknown)
}

// Classify maps a user message to an intent. Any transport or parsing
// failure degrades to models.IntentUnknown alongside the error so callers
// can log and continue.
func (c *Client) Classify(ctx context.Context, message string) (models.Intent, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt()),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		slog.Warn("Client.Classify: completion failed, falling back to unknown", "error", err)
		return models.IntentUnknown, err
	}
	if len(resp.Choices) == 0 {
		slog.Warn("Client.Classify: empty completion, falling back to unknown")
		return models.IntentUnknown, ErrNoChoicesReturned
	}
	intent := models.ParseIntent(resp.Choices[0].Message.Content)
	slog.Debug("Client.Classify: classified message", "intent", intent)
	return intent, nil
}

// ExtractFields asks the model for a JSON object mapping the known field
// names to values found in the message. A malformed response degrades to an
// empty map.
func (c *Client) ExtractFields(ctx context.Context, message string, known []string) (map[string]string, error) {
	if len(known) == 0 {
		return map[string]string{}, nil
	}
	system := fmt.Sprintf(
		"Extract values for these fields from the user message: %s. "+
			"Reply with a single JSON object using exactly those keys. "+
			"Omit keys the message does not provide a value for. No prose.",
		strings.Join(known, ", "))
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		slog.Warn("Client.ExtractFields: completion failed", "error", err)
		return map[string]string{}, err
	}
	if len(resp.Choices) == 0 {
		return map[string]string{}, ErrNoChoicesReturned
	}
	fields, err := parseFieldObject(resp.Choices[0].Message.Content, known)
	if err != nil {
		slog.Warn("Client.ExtractFields: unparseable extraction payload", "error", err)
		return map[string]string{}, nil
	}
	slog.Debug("Client.ExtractFields: extracted fields", "count", len(fields))
	return fields, nil
}

// GenerateReply produces a response for the given system and user prompts.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// parseFieldObject decodes the extraction payload, tolerating markdown code
// fences, and keeps only the known field names with non-empty values.
func parseFieldObject(content string, known []string) (map[string]string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw map[string]string
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode field object: %w", err)
	}

	allowed := make(map[string]bool, len(known))
	for _, field := range known {
		allowed[field] = true
	}
	fields := make(map[string]string)
	for key, value := range raw {
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(value)
		if allowed[key] && value != "" {
			fields[key] = value
		}
	}
	return fields, nil
}

// DisabledClient satisfies ClientInterface when no API key is configured.
// Classification degrades to the documented unknown fallback and extraction
// yields nothing, so the agent still answers with its capability listing.
type DisabledClient struct{}

// NewDisabledClient returns the inert classifier.
func NewDisabledClient() *DisabledClient {
	slog.Info("genai.NewDisabledClient: classifier disabled, all intents fall back to unknown")
	return &DisabledClient{}
}

// Classify always returns the unknown fallback.
func (d *DisabledClient) Classify(ctx context.Context, message string) (models.Intent, error) {
	return models.IntentUnknown, nil
}

// ExtractFields always returns an empty field map.
func (d *DisabledClient) ExtractFields(ctx context.Context, message string, known []string) (map[string]string, error) {
	return map[string]string{}, nil
}

// GenerateReply reports the client as disabled.
func (d *DisabledClient) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", ErrClientDisabled
}
