// Package llm classifies cleaned feedback tickets one at a time through an
// LLM provider and parses the strict-JSON answers into classifications.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"insightbot/internal/domain"
	"insightbot/internal/httpx"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

var ErrBadResponse = errors.New("malformed classifier response")

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

type Config struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	MaxRetries      int
}

// Outcome reports what a classification pass produced. Tickets whose
// classification failed after all retries are skipped, not fatal.
type Outcome struct {
	Classifications []domain.Classification
	Skipped         []int64
	Usage           LLMUsage
}

type Classifier struct {
	cfg     Config
	logger  *log.Logger
	backoff time.Duration
	sleep   func(time.Duration)

	// call is swapped out in tests.
	call func(ctx context.Context, systemPrompt, userPrompt string) (string, LLMUsage, error)
}

func NewClassifier(cfg Config, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	c := &Classifier{cfg: cfg, logger: logger, backoff: defaultBackoff, sleep: time.Sleep}
	switch cfg.Provider {
	case "openai":
		c.call = c.callOpenAI
	default:
		c.call = c.callAnthropic
	}
	return c
}

// ClassifyAll classifies tickets strictly in order, one request per ticket.
// A ticket that still fails after the retry budget is logged and skipped so
// one bad response cannot sink the whole run. The error return is non-nil
// only when the context is cancelled or every single ticket failed.
func (c *Classifier) ClassifyAll(ctx context.Context, tickets []domain.CleanedTicket, contextBlock string) (Outcome, error) {
	out := Outcome{}
	if len(tickets) == 0 {
		return out, nil
	}
	c.logger.Printf("llm classify start provider=%s tickets=%d", c.providerName(), len(tickets))

	for i, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		classification, usage, err := c.classifyOne(ctx, ticket, contextBlock)
		out.Usage.Add(usage)
		if err != nil {
			c.logger.Printf("llm classify ticket=%d failed: %v", ticket.TicketID, err)
			out.Skipped = append(out.Skipped, ticket.TicketID)
			continue
		}
		out.Classifications = append(out.Classifications, *classification)
		c.logger.Printf("llm classify ticket=%d done category=%s progress=%d/%d",
			ticket.TicketID, classification.Category, i+1, len(tickets))
	}

	c.logger.Printf("llm classify done classified=%d skipped=%d tokens=%d",
		len(out.Classifications), len(out.Skipped), out.Usage.TotalTokens())
	if len(out.Classifications) == 0 {
		return out, fmt.Errorf("all %d tickets failed classification", len(tickets))
	}
	return out, nil
}

func (c *Classifier) classifyOne(ctx context.Context, ticket domain.CleanedTicket, contextBlock string) (*domain.Classification, LLMUsage, error) {
	if strings.TrimSpace(ticket.Text) == "" {
		return nil, LLMUsage{}, fmt.Errorf("ticket %d has no analyzable text", ticket.TicketID)
	}
	systemPrompt := buildSystemPrompt(contextBlock)
	userPrompt := buildUserPrompt(ticket)

	var totalUsage LLMUsage
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, totalUsage, err
		}
		responseText, usage, err := c.call(ctx, systemPrompt, userPrompt)
		totalUsage.Add(usage)
		if err == nil {
			classification, parseErr := parseClassification(responseText)
			if parseErr == nil {
				classification.TicketID = ticket.TicketID
				classification.TicketCreatedAt = ticket.CreatedAt
				return classification, totalUsage, nil
			}
			err = parseErr
		}
		lastErr = err
		if attempt < c.cfg.MaxRetries {
			c.logger.Printf("llm classify ticket=%d attempt=%d backoff=%s err=%v", ticket.TicketID, attempt, backoff, err)
			c.sleep(backoff)
			backoff *= 2
		}
	}
	return nil, totalUsage, lastErr
}

func (c *Classifier) providerName() string {
	if c.cfg.Provider == "openai" {
		return "openai"
	}
	return "anthropic"
}

func buildSystemPrompt(contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are an expert game feedback analyst. Analyze the player feedback and provide a structured classification.\n")
	if contextBlock != "" {
		b.WriteString("\nGAME CONTEXT:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\nIMPORTANT: Use this context to:\n")
		b.WriteString("- Determine if reported issues are actually expected behaviors based on known constraints\n")
		b.WriteString("- Identify which specific game feature the feedback relates to\n")
		b.WriteString("- Understand if suggestions are for existing or new features\n")
	}
	return b.String()
}

func buildUserPrompt(ticket domain.CleanedTicket) string {
	return strings.Join([]string{
		"FEEDBACK TO ANALYZE:",
		"Subject: " + ticket.Subject,
		"Message: " + ticket.Text,
		"",
		"Provide your analysis in the following STRICT JSON format:",
		"{",
		`  "category": "<Main category: Bug, Feature Request, Positive Feedback, Negative Feedback, Question, Technical Issue, Balance Issue, or Other>",`,
		`  "subcategory": "<Specific subcategory within the main category>",`,
		`  "sentiment": "<Overall sentiment: Positive, Negative, Neutral, or Mixed>",`,
		`  "intent": "<User intent: Report Bug, Request Feature, Praise Game, Complain, Ask Question, or Other>",`,
		`  "confidence": <Confidence score between 0.0 and 1.0>,`,
		`  "key_points": ["<Key point 1>", "<Key point 2>", ...],`,
		`  "short_summary": "<One sentence summary of the feedback>",`,
		`  "is_expected_behavior": <true/false based on game context>,`,
		`  "related_feature": "<Which game feature this relates to, or null if not feature-specific>"`,
		"}",
		"",
		"IMPORTANT:",
		"- Return ONLY the JSON object, no additional text",
		"- Ensure valid JSON syntax and double quotes for strings",
		"- confidence must be a number between 0.0 and 1.0",
		"- key_points must be an array of 2-5 strings",
	}, "\n")
}

// parseClassification accepts the raw model output, tolerating markdown code
// fences around the JSON object but nothing else.
func parseClassification(responseText string) (*domain.Classification, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrBadResponse, err, truncate(responseText, 200))
	}
	for _, field := range []string{"category", "subcategory", "sentiment", "intent", "confidence", "key_points", "short_summary", "is_expected_behavior"} {
		if _, ok := raw[field]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrBadResponse, field)
		}
	}

	var c domain.Classification
	if err := json.Unmarshal([]byte(responseText), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrBadResponse, c.Confidence)
	}
	return &c, nil
}

func (c *Classifier) callAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.cfg.AnthropicAPIKey))
	model := c.cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			c.logger.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d",
				len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Classifier) callOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	model := c.cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &openAIFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)

	resp, err := httpx.ExternalHTTPClient().Do(req)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", LLMUsage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if openAIResp.Error != nil {
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	c.logger.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d",
		len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
