package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

//go:embed question.md
var questionTemplate string

//go:embed score.md
var scoreTemplate string

// Interviewer generates interview questions and scores answers.
type Interviewer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var (
	_ ai.QuestionGenerator = (*Interviewer)(nil)
	_ ai.AnswerScorer      = (*Interviewer)(nil)
)

func NewInterviewer(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Interviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interviewer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (i *Interviewer) GenerateQuestion(ctx context.Context, req ai.QuestionRequest) (string, error) {
	if i == nil || i.generator == nil {
		return "", errors.New("interviewer is not initialized")
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		return "", errors.New("role must not be empty")
	}

	prompt := buildQuestionPrompt(req)
	i.logDebug("question prompt", prompt)

	raw, err := i.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate question: %w", err)
	}

	question := strings.Trim(strings.TrimSpace(raw), `"`)
	if question == "" {
		return "", errors.New("model returned an empty question")
	}
	return question, nil
}

// ScoreAnswer returns nil feedback without error when the model output is not usable JSON.
func (i *Interviewer) ScoreAnswer(ctx context.Context, role, question, transcript string) (*ai.Feedback, error) {
	if i == nil || i.generator == nil {
		return nil, errors.New("interviewer is not initialized")
	}

	prompt := buildScorePrompt(role, question, transcript)
	i.logDebug("score prompt", prompt)

	raw, err := i.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("score answer: %w", err)
	}
	i.logDebug("score response", raw)

	feedback := parseFeedback(raw)
	if feedback == nil {
		i.logger.Warn("model returned malformed feedback",
			zap.String("response_preview", utils.TruncateForLog(raw, i.maxLogLen)),
		)
	}
	return feedback, nil
}

func (i *Interviewer) logDebug(msg, text string) {
	i.logger.Debug(msg,
		zap.Int("length", utf8.RuneCountInString(text)),
		zap.String("preview", utils.TruncateForLog(text, i.maxLogLen)),
	)
}

func buildQuestionPrompt(req ai.QuestionRequest) string {
	previous := "(ninguna)"
	if len(req.Previous) > 0 {
		lines := make([]string, 0, len(req.Previous))
		for _, q := range req.Previous {
			lines = append(lines, "- "+q)
		}
		previous = strings.Join(lines, "\n")
	}

	r := strings.NewReplacer(
		"{{ROLE}}", strings.TrimSpace(req.Role),
		"{{NUMBER}}", strconv.Itoa(req.Number),
		"{{TOTAL}}", strconv.Itoa(req.Total),
		"{{THEME}}", req.Theme,
		"{{PREVIOUS}}", previous,
	)
	return r.Replace(questionTemplate)
}

func buildScorePrompt(role, question, transcript string) string {
	r := strings.NewReplacer(
		"{{ROLE}}", strings.TrimSpace(role),
		"{{QUESTION}}", strings.TrimSpace(question),
		"{{ANSWER}}", strings.TrimSpace(transcript),
	)
	return r.Replace(scoreTemplate)
}

func parseFeedback(raw string) *ai.Feedback {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil
	}

	return &ai.Feedback{
		Score:       clampScore(score),
		Summary:     coerceString(data["summary"]),
		Strengths:   coerceStrings(data["strengths"]),
		Weaknesses:  coerceStrings(data["weaknesses"]),
		Suggestions: coerceStrings(data["suggestions"]),
		Raw:         raw,
	}
}

func clampScore(score float64) int {
	s := int(math.Round(score))
	switch {
	case s < 1:
		return 1
	case s > 10:
		return 10
	default:
		return s
	}
}

// extractJSON strips markdown fences and any prose around the first object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return nil
}
