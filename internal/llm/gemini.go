package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// The model call is the only blocking operation on the request path; anything
// slower than this is treated as a failure.
const geminiTimeout = 30 * time.Second

var (
	// ErrSafetyFiltered means the model produced a reply but the upstream
	// safety filter withheld it.
	ErrSafetyFiltered = errors.New("response blocked by safety filter")
	// ErrEmptyResponse means the API answered 200 with no usable candidate.
	ErrEmptyResponse = errors.New("no response candidate")
)

type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiAPIBase,
		http:    &http.Client{Timeout: geminiTimeout},
	}
}

// Raw API request/response types

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string        `json:"finishReason"`
		Content      geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) Generate(ctx context.Context, systemInstruction string, history []Message, params Params) (string, error) {
	contents := make([]geminiContent, 0, len(history))
	for _, m := range history {
		contents = append(contents, geminiContent{
			Role:  m.Role,
			Parts: []geminiPart{{Text: m.Text}},
		})
	}

	reqBody := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxOutputTokens,
			TopP:            params.TopP,
			TopK:            params.TopK,
		},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Err: fmt.Errorf("gemini: %s %s", resp.Status, string(respBody))}
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(gemResp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := gemResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", ErrSafetyFiltered
	}
	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return "", ErrEmptyResponse
	}
	return candidate.Content.Parts[0].Text, nil
}
