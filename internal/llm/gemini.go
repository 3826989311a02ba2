package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiKeyEnv = "GEMINI_API_KEY"

// GeminiClient sends each Request as one GenerateContent call.
type GeminiClient struct {
	model   string
	timeout time.Duration
	client  *genai.Client
}

// NewGeminiClient builds a client for the Gemini API backend. httpClient
// may be nil.
func NewGeminiClient(ctx context.Context, s Settings, httpClient *http.Client) (*GeminiClient, error) {
	s, err := s.normalize("gemini", geminiKeyEnv)
	if err != nil {
		return nil, err
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     s.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if s.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{model: s.Model, timeout: s.Timeout, client: client}, nil
}

// Complete implements Completer.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.Instructions) != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Input), genCfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini %s: %w", req.Name, err)
	}
	output := strings.TrimSpace(resp.Text())
	if output == "" {
		return Response{}, fmt.Errorf("gemini %s: %w", req.Name, ErrEmptyOutput)
	}
	return Response{Text: output}, nil
}
