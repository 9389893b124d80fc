package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/worky/internal/logger"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	provider      = "gemini"
	defaultModel  = "gemini-2.5-flash"
	maxQuotaDelay = 10 * time.Second
	jsonMIMEType  = "application/json"
)

var sleep = utils.WaitFor

var retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

// Config configures the Gemini backend.
type Config struct {
	APIKey string
	Model  string
	// FallbackModel is tried once when Model fails.
	FallbackModel string
	// MaxRetries is the number of attempts on Model for temporary errors.
	MaxRetries   int
	Temperature  float32
	MaxLogLength int
}

type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator sends prompts to Gemini with retries and a fallback model.
type Generator struct {
	models      modelClient
	model       string
	fallback    string
	maxRetries  int
	temperature float32
	logger      *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(models modelClient, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	fallback := strings.TrimSpace(cfg.FallbackModel)
	if fallback == model {
		fallback = ""
	}

	return &Generator{
		models:      models,
		model:       model,
		fallback:    fallback,
		maxRetries:  max(cfg.MaxRetries, 1),
		temperature: cfg.Temperature,
		logger:      logger.WithCommonFields(log, provider, model),
	}
}

// GenerateContent sends a text prompt and returns the textual response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	contents, err := textContents(prompt)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, contents, g.config(""))
}

// GenerateJSON asks for a JSON response.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	contents, err := textContents(prompt)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, contents, g.config(jsonMIMEType))
}

// GenerateWithImage sends a prompt together with an inline image.
func (g *Generator) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image must not be empty")
	}
	contents, err := textContents(prompt)
	if err != nil {
		return "", err
	}
	contents[0].Parts = append(contents[0].Parts, &genai.Part{
		InlineData: &genai.Blob{Data: image, MIMEType: mimeType},
	})
	return g.generate(ctx, contents, g.config(""))
}

// Model returns the primary model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) config(mimeType string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: mimeType}
	if g.temperature > 0 {
		t := g.temperature
		cfg.Temperature = &t
	}
	return cfg
}

func textContents(prompt string) ([]*genai.Content, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}
	return []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}, nil
}

func (g *Generator) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	out, err := g.withRetries(ctx, contents, cfg)
	if err == nil || g.fallback == "" || ctx.Err() != nil {
		return out, err
	}

	g.logger.Warn("primary model failed, trying fallback model",
		zap.String("fallback_model", g.fallback),
		zap.Error(err),
	)

	out, fbErr := g.call(ctx, g.fallback, contents, cfg)
	if fbErr != nil {
		return "", fmt.Errorf("model %s: %v; fallback model %s: %w", g.model, err, g.fallback, fbErr)
	}
	return out, nil
}

func (g *Generator) withRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		out, err := g.call(ctx, g.model, contents, cfg)
		if err == nil {
			return out, nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}

		g.logger.Debug("temporary model error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (g *Generator) call(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

// retryDelay decides whether an error is temporary and how long to wait.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return 0, false
		}
		apiErr = *ptr
	}

	backoff := time.Duration(attempt) * time.Second

	switch apiErr.Code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return backoff, true
	case http.StatusTooManyRequests:
		m := retryDelayPattern.FindStringSubmatch(apiErr.Message)
		if m == nil {
			return backoff, true
		}
		secs, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			return backoff, true
		}
		delay := time.Duration(secs * float64(time.Second))
		if delay > maxQuotaDelay {
			return 0, false
		}
		return delay, true
	default:
		return 0, false
	}
}
