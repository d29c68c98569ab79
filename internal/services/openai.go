package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the subset of *openai.Client used for recommendations
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	defaultRecommendAttempts = 4
	defaultRecommendDelay    = 3 * time.Second
)

// OpenAIClient writes short parking recommendations with a chat model
type OpenAIClient struct {
	client      ChatCompleter
	model       string
	temperature float32
	maxTokens   int

	maxAttempts int
	baseDelay   time.Duration
	wait        func(ctx context.Context, d time.Duration) error
}

// NewOpenAIClient creates a client for the OpenAI API
func NewOpenAIClient(apiKey, model string, maxTokens int) *OpenAIClient {
	return NewOpenAIClientWithCompleter(openai.NewClient(apiKey), model, maxTokens)
}

// NewOpenAIClientWithCompleter creates a client around any chat completer
func NewOpenAIClientWithCompleter(client ChatCompleter, model string, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		model:       model,
		temperature: 0.3,
		maxTokens:   maxTokens,
		maxAttempts: defaultRecommendAttempts,
		baseDelay:   defaultRecommendDelay,
		wait:        sleepContext,
	}
}

// SetRetry changes the throttling retry policy
func (o *OpenAIClient) SetRetry(maxAttempts int, baseDelay time.Duration) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	o.maxAttempts = maxAttempts
	o.baseDelay = baseDelay
}

// Recommend sends the prompt and returns the model's answer. Throttled requests are retried
// after baseDelay·3^attempt.
func (o *OpenAIClient) Recommend(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no response choices from OpenAI")
			}
			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		}

		lastErr = err
		if !IsThrottled(err) || attempt == o.maxAttempts-1 {
			break
		}

		delay := o.backoff(attempt)
		log.Printf("OpenAI request throttled (attempt %d/%d), retrying in %v", attempt+1, o.maxAttempts, delay)
		if err := o.wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("openai request failed: %w", lastErr)
}

func (o *OpenAIClient) backoff(attempt int) time.Duration {
	delay := o.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 3
	}
	return delay
}

// IsThrottled reports whether the error is a rate limit or an overloaded server
func IsThrottled(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
