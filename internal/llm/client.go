package llm

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dotagpt/dotagpt/internal/logger"
)

const (
	defaultChatModelName  = "gemini-1.5-flash"
	defaultTitleModelName = "gemini-1.5-flash"

	// MaxMessageLength bounds a single user utterance.
	MaxMessageLength = 4000

	chatSystemInstruction = "You are DotaGPT, a helpful Dota 2 assistant. Provide accurate and helpful information " +
		"about Dota 2 gameplay, heroes, items, and strategies. Answer only questions related to Dota 2. " +
		"Keep your answers concise and directly related to the user's question."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	offTopicReply = "I'm DotaGPT, designed exclusively for Dota 2 questions. I cannot and will not answer questions " +
		"about other games or topics. Please ask me about Dota 2 heroes, items, strategies, mechanics, or gameplay!"
)

// Titles of other MOBAs that get the canned refusal without an upstream call.
var nonDotaGames = []string{
	"mobile legends", "league of legends", "lol", "wild rift",
	"heroes of newerth", "hon", "heroes of the storm", "hots",
	"arena of valor", "aov", "smite", "paragon", "vainglory",
	"pokemon unite", "onmyoji arena", "marvel super war",
}

// Client adapts the Gemini API to the completion contract the reconciliation
// engine depends on: replies are non-empty text, failures are typed and carry
// a retryability flag.
type Client struct {
	genai *genai.Client
	log   *logger.Logger
}

func NewClient(ctx context.Context, apiKey string, log *logger.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{genai: client, log: log}, nil
}

func (c *Client) Close() {
	if c.genai != nil {
		if err := c.genai.Close(); err != nil {
			c.log.Warn("error closing GenAI client", "error", err)
		}
	}
}

// ValidateMessage applies the input rules rejected before any network call.
func ValidateMessage(message string) *Failure {
	if message == "" {
		return newFailure(CodeMissingMessage, "Message is required", "Please provide a valid message string.")
	}
	if strings.TrimSpace(message) == "" {
		return newFailure(CodeEmptyMessage, "Message cannot be empty", "Please provide a non-empty message.")
	}
	if len(message) > MaxMessageLength {
		return newFailure(CodeMessageTooLong, "Message too long", "Message must be less than 4000 characters.")
	}
	return nil
}

// Complete sends one user utterance and returns the generated reply. Every
// error returned is a *Failure.
func (c *Client) Complete(ctx context.Context, message string) (string, error) {
	if failure := ValidateMessage(message); failure != nil {
		return "", failure
	}

	lower := strings.ToLower(message)
	for _, game := range nonDotaGames {
		if strings.Contains(lower, game) && !strings.Contains(lower, "dota") {
			return offTopicReply, nil
		}
	}

	model := c.genai.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text("User question: "+message))
	if err != nil {
		return "", classifyError(err)
	}

	text, failure := extractText(resp)
	if failure != nil {
		return "", failure
	}
	return text, nil
}

// GenerateTitle asks the model for a short chatroom title based on the first
// exchange.
func (c *Client) GenerateTitle(ctx context.Context, basisContent string) (string, error) {
	model := c.genai.GenerativeModel(defaultTitleModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := "Generate a very concise title (3-5 words maximum) for a conversation that starts with: \"" + basisContent + "\"."
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyError(err)
	}

	text, failure := extractText(resp)
	if failure != nil {
		return "", failure
	}
	return strings.Trim(text, "\"'\n\r\t ."), nil
}

func extractText(resp *genai.GenerateContentResponse) (string, *Failure) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", newFailure(CodeInvalidResponse, "Invalid response from AI", "The AI service returned an invalid response structure.")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", newFailure(CodeEmptyResponse, "Empty response from AI", "The AI service returned an empty response. Please try again.")
	}
	return sb.String(), nil
}

// classifyError normalizes upstream errors into the failure taxonomy.
func classifyError(err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	msg := err.Error()

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return newFailure(CodeInvalidAPIKey, "Authentication failed", msg)
		case 403:
			return newFailure(CodePermissionDenied, "Access denied", msg)
		case 404:
			return newFailure(CodeModelNotFound, "AI model not available", msg)
		case 429:
			return newFailure(CodeQuotaExceeded, "Rate limit exceeded", msg)
		}
		if apiErr.Code >= 500 {
			return newFailure(CodeServiceUnavailable, "AI service unavailable", msg)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return newFailure(CodeTimeout, "Request timeout", msg)
	case isNetworkError(err):
		return newFailure(CodeNetworkError, "Network error", msg)
	}

	upper := strings.ToUpper(msg)
	switch {
	case strings.Contains(upper, "API_KEY_INVALID") || strings.Contains(upper, "API KEY"):
		return newFailure(CodeInvalidAPIKey, "Authentication failed", msg)
	case strings.Contains(upper, "PERMISSION_DENIED"):
		return newFailure(CodePermissionDenied, "Access denied", msg)
	case strings.Contains(upper, "QUOTA") || strings.Contains(upper, "RESOURCE_EXHAUSTED"):
		return newFailure(CodeQuotaExceeded, "Rate limit exceeded", msg)
	case strings.Contains(upper, "SAFETY") || strings.Contains(upper, "BLOCKED"):
		return newFailure(CodeContentBlocked, "Content blocked", msg)
	case strings.Contains(strings.ToLower(msg), "timeout"):
		return newFailure(CodeTimeout, "Request timeout", msg)
	}

	return newFailure(CodeInternal, "Internal server error", msg)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
