package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/voxscribe/apiserver/config"
	"github.com/voxscribe/apiserver/types"
)

const (
	errTypeInsufficientQuota = "insufficient_quota"
	errTypeInvalidRequest    = "invalid_request_error"
)

// OpenAIProvider calls the OpenAI audio transcription endpoint, or any
// compatible server when a base URL is configured.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider from config. It fails when no API key is set.
func NewOpenAIProvider(cfg config.TranscriberConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("transcription API key is missing")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Transcribe sends the audio bytes and returns the recognized text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, file types.AudioFile) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: file.Name,
		Reader:   bytes.NewReader(file.Data),
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// classify maps an API error onto one of the provider failure classes using
// the error's type field.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Type == errTypeInsufficientQuota, apiErr.Code == errTypeInsufficientQuota,
			apiErr.HTTPStatusCode == http.StatusTooManyRequests, apiErr.HTTPStatusCode == http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		case apiErr.Type == errTypeInvalidRequest:
			return fmt.Errorf("%w: %w", ErrInvalidAudio, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrFailed, err)
}
