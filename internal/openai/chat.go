package openai

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultSynthesisModel   = "llama3.1:8b"
	DefaultSynthesisTimeout = 600 * time.Second
)

// ErrEmptyCompletion is returned when the server answers without any choice.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// ChatAPI is the subset of *openai.Client used for synthesis.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Synthesizer sends one JSON-mode chat completion per call and returns the
// raw content. It never retries: a timeout or transport error is returned as
// domain.ErrSynthesisTransport.
type Synthesizer struct {
	api     ChatAPI
	model   string
	timeout time.Duration
}

type SynthesizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	return newSynthesizer(NewAPIClient(cfg.APIKey, cfg.BaseURL), cfg.Model, cfg.Timeout)
}

func newSynthesizer(api ChatAPI, model string, timeout time.Duration) *Synthesizer {
	if model == "" {
		model = DefaultSynthesisModel
	}
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	return &Synthesizer{api: api, model: model, timeout: timeout}
}

// Complete sends system and user messages and returns the assistant content.
func (s *Synthesizer) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeSynthesisTransport, domain.ErrSynthesisTransport.Message, err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeSynthesisTransport, domain.ErrSynthesisTransport.Message, ErrEmptyCompletion)
	}

	return resp.Choices[0].Message.Content, nil
}
