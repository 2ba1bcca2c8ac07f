// Package openai implements the relationship-inference client on the
// OpenAI chat-completions API with structured output.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openfilings/relgraph/backend/pkg/relmodel"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultTimeout = 120 * time.Second

type Client struct {
	model   string
	timeout time.Duration
	chat    *openai.Client
}

type NewClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
	// Timeout bounds a single inference call. Zero means the default.
	Timeout time.Duration
}

func NewClient(params NewClientParams) (*Client, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("missing API key for relationship model")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	chat := openai.NewClient(options...)

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		model:   params.Model,
		timeout: timeout,
		chat:    &chat,
	}, nil
}

// InferRelationships runs one inference call for the subject entity. The
// response payload is returned raw: schema enforcement is a request-side
// hint, and the downstream parser decides what survives.
func (c *Client) InferRelationships(
	ctx context.Context,
	subject relmodel.EntityContext,
	comentioned []relmodel.EntityContext,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	schema := relmodel.GenerateSchema(relmodel.RelationshipEnvelope{})
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "relationships",
		Description: openai.String("Business relationships of the subject entity"),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(relmodel.BuildPrompt(subject, comentioned)),
		},
		Temperature: openai.Float(0.1),
	}

	response, err := c.chat.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", fmt.Errorf("empty response from model (finish_reason: %s)",
			response.Choices[0].FinishReason)
	}
	return message, nil
}
