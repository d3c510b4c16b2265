package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key: %w", ErrMissingCredential)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		timeout:   30 * time.Second,
	}, nil
}

// ScanReceipt analyzes a receipt and extracts the fields enabled in settings
func (g *Gemini) ScanReceipt(ctx context.Context, imageData []byte, contentType string, settings Settings) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	schema := BuildSchema(settings)

	// The response schema depends on the settings, so each scan gets its own model handle
	model := g.client.GenerativeModel(g.modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema.Genai()

	// genai.ImageData expects just the format suffix, and prepareImageData always yields PNG
	parts := []genai.Part{
		genai.ImageData("png", finalImageData),
		genai.Text(schema.Prompt()),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseExtractionJSON(responseText.String(), schema)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return data, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
