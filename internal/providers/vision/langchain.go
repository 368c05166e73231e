package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainOptions selects and configures the backing provider.
type LangChainOptions struct {
	Provider string // openrouter|openai|ollama|mistral|anthropic
	APIKey   string
	BaseURL  string // OpenAI-compatible base URL (OpenRouter)
}

// LangChainProvider serves inference through langchaingo so one code path
// covers OpenRouter, OpenAI, Ollama, Mistral and Anthropic. The model id is
// chosen per call, which is what lets the detector walk its candidate list
// over a single client.
type LangChainProvider struct {
	provider string
	llm      llms.Model
}

func NewLangChain(opts LangChainOptions) (*LangChainProvider, error) {
	provider := strings.ToLower(opts.Provider)

	var model llms.Model
	var err error
	switch provider {
	case "openrouter":
		if opts.APIKey == "" {
			return nil, errors.New("OpenRouter API key is not set")
		}
		model, err = openai.New(
			openai.WithToken(opts.APIKey),
			openai.WithBaseURL(opts.BaseURL),
		)
	case "openai":
		if opts.APIKey == "" {
			return nil, errors.New("OpenAI API key is not set")
		}
		clientOpts := []openai.Option{openai.WithToken(opts.APIKey)}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(clientOpts...)
	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		model, err = ollama.New(ollama.WithServerURL(host))
	case "mistral":
		if opts.APIKey == "" {
			return nil, errors.New("Mistral API key is not set")
		}
		model, err = mistral.New(mistral.WithAPIKey(opts.APIKey))
	case "anthropic":
		if opts.APIKey == "" {
			return nil, errors.New("Anthropic API key is not set")
		}
		model, err = anthropic.New(anthropic.WithToken(opts.APIKey))
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	return &LangChainProvider{provider: provider, llm: model}, nil
}

func (p *LangChainProvider) Close() error { return nil }

func (p *LangChainProvider) Generate(ctx context.Context, req Request) (string, error) {
	// OpenAI-family endpoints take images as data URIs; the rest take raw bytes.
	var imagePart llms.ContentPart
	switch p.provider {
	case "openrouter", "openai", "mistral":
		imagePart = llms.ImageURLPart(
			"data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image))
	default:
		imagePart = llms.BinaryPart(req.MIMEType, req.Image)
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.Model != "" {
		callOpts = append(callOpts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	completion, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{imagePart, llms.TextPart(req.Prompt)},
		},
	}, callOpts...)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty choices in completion")
	}
	return completion.Choices[0].Content, nil
}
