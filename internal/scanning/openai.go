package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model name is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI implements the Scanner interface against any OpenAI compatible
// chat completions API
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates a new OpenAI Scanner instance. baseURL may be empty to use
// the public API.
func NewOpenAI(apiKey, baseURL, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key: %w", ErrMissingCredential)
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAI{
		client:  openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: 60 * time.Second,
	}, nil
}

// jsonSchema lets a plain map satisfy json.Marshaler for the response format
type jsonSchema map[string]any

func (s jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// ScanReceipt analyzes a receipt and extracts the fields enabled in settings
func (o *OpenAI) ScanReceipt(ctx context.Context, imageData []byte, contentType string, settings Settings) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	finalImageData, mimeType, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	schema := BuildSchema(settings)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    EncodeDataURI(finalImageData, mimeType),
							Detail: openai.ImageURLDetailHigh,
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: schema.Prompt(),
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "receipt",
				Schema: jsonSchema(schema.JSONSchema()),
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	data, err := parseExtractionJSON(resp.Choices[0].Message.Content, schema)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return data, nil
}

// Close is a no-op, the OpenAI client holds no resources
func (o *OpenAI) Close() error {
	return nil
}
