package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements the Scanner interface using Ollama
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner instance.
// The model must be vision capable (llava, qwen2-vl, llama3.2-vision, ...).
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on local hardware
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   map[string]any  `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanReceipt analyzes a receipt and extracts the fields enabled in settings
func (o *Ollama) ScanReceipt(ctx context.Context, imageData []byte, contentType string, settings Settings) (*Extraction, error) {
	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	schema := BuildSchema(settings)

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: schema.JSONSchema(),
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts. Carefully read all text in the image and extract accurate information.",
			},
			{
				Role:    "user",
				Content: schema.Prompt(),
				Images:  []string{base64.StdEncoding.EncodeToString(finalImageData)},
			},
		},
	}

	content, err := o.chat(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	data, err := parseExtractionJSON(content, schema)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return data, nil
}

// chat sends one non streaming chat request and returns the assistant message
func (o *Ollama) chat(ctx context.Context, chatReq ollamaChatRequest) (string, error) {
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return chatResp.Message.Content, nil
}

// Close is a no-op, requests share the HTTP client
func (o *Ollama) Close() error {
	return nil
}
