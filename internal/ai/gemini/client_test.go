package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	queue map[string][]fakeResponse
}

type modelCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func newFakeModels() *fakeModels {
	return &fakeModels{queue: make(map[string][]fakeResponse)}
}

func (f *fakeModels) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{model: model, contents: contents, config: config})
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	originalSleep := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { sleep = originalSleep })
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models.enqueue("gemini-pro", nil, tempErr)
	models.enqueue("gemini-pro", textResponse("retry ok"), nil)

	g := newGenerator(models, Config{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	output, err := g.GenerateContent(context.Background(), "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
	if got := models.calls[0].contents[0].Parts[0].Text; got != "message" {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestGeneratorFallsBackOnce(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	models.enqueue("primary", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})
	models.enqueue("secondary", textResponse("from fallback"), nil)

	g := newGenerator(models, Config{Model: "primary", FallbackModel: "secondary"}, zap.NewNop())

	output, err := g.GenerateContent(context.Background(), "question please")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "from fallback" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.calls) != 2 || models.calls[1].model != "secondary" {
		t.Fatalf("expected primary then fallback, got %+v", models.calls)
	}
}

func TestGeneratorSurfacesFallbackFailure(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	models.enqueue("primary", nil, errors.New("boom"))
	models.enqueue("secondary", nil, errors.New("also boom"))

	g := newGenerator(models, Config{Model: "primary", FallbackModel: "secondary"}, zap.NewNop())

	_, err := g.GenerateContent(context.Background(), "question please")
	if err == nil {
		t.Fatal("expected error when both models fail")
	}
	if !strings.Contains(err.Error(), "primary") || !strings.Contains(err.Error(), "secondary") {
		t.Fatalf("expected both models in error, got %v", err)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected exactly one fallback call, got %d calls", len(models.calls))
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models.enqueue("gemini-pro", nil, tempErr)
	models.enqueue("gemini-pro", nil, tempErr)

	g := newGenerator(models, Config{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "msg"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := newFakeModels()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	models.enqueue("gemini-pro", nil, quotaErr)

	g := newGenerator(models, Config{Model: "gemini-pro", MaxRetries: 3}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "msg"); err == nil {
		t.Fatal("expected error when quota delay too long")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGenerateJSONSetsMIMEType(t *testing.T) {
	models := newFakeModels()
	models.enqueue(defaultModel, textResponse(`{"score": 7}`), nil)

	g := newGenerator(models, Config{}, zap.NewNop())

	if _, err := g.GenerateJSON(context.Background(), "score it"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := models.calls[0].config.ResponseMIMEType; got != jsonMIMEType {
		t.Fatalf("unexpected mime type: %q", got)
	}
}

func TestGenerateWithImageAttachesBlob(t *testing.T) {
	models := newFakeModels()
	models.enqueue(defaultModel, textResponse(`{"nombre":"x","monto":4}`), nil)

	g := newGenerator(models, Config{}, zap.NewNop())

	if _, err := g.GenerateWithImage(context.Background(), "read", []byte{1, 2, 3}, "image/png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := models.calls[0].contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil {
		t.Fatalf("expected inline image part, got %+v", parts)
	}
	if parts[1].InlineData.MIMEType != "image/png" {
		t.Fatalf("unexpected mime type: %q", parts[1].InlineData.MIMEType)
	}

	if _, err := g.GenerateWithImage(context.Background(), "read", nil, "image/png"); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestResponseTextRejectsEmpty(t *testing.T) {
	if _, err := responseText(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty response")
	}
}
