package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"
)

const openAIKeyEnv = "OPENAI_API_KEY"

// OpenAIClient sends each Request as one Responses API call.
type OpenAIClient struct {
	model  string
	client openai.Client
}

// NewOpenAIClient builds a client. httpClient may be nil.
func NewOpenAIClient(s Settings, httpClient *http.Client) (*OpenAIClient, error) {
	s, err := s.normalize("openai", openAIKeyEnv)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithRequestTimeout(s.Timeout),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIClient{model: s.Model, client: openai.NewClient(opts...)}, nil
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.JSON {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai %s: %w", req.Name, err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return Response{}, fmt.Errorf("openai %s failed: %s", req.Name, msg)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return Response{}, fmt.Errorf("openai %s: %w", req.Name, ErrEmptyOutput)
	}
	log.Debug().Str("call", req.Name).Str("model", c.model).Int64("output_tokens", resp.Usage.OutputTokens).Msg("openai response")
	return Response{Text: text}, nil
}
