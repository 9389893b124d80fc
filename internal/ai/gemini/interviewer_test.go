package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/worky/internal/ai"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
	jsonCalls  int
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	s.jsonCalls++
	s.lastPrompt = prompt
	return s.response, s.err
}

func TestGenerateQuestionBuildsPrompt(t *testing.T) {
	stub := &stubGenerator{response: "  \"¿Qué proyecto te enorgullece?\"  "}
	interviewer := NewInterviewer(stub, zap.NewNop(), 100)

	question, err := interviewer.GenerateQuestion(context.Background(), ai.QuestionRequest{
		Role:     "Analista de datos",
		Number:   2,
		Total:    4,
		Theme:    "habilidades",
		Previous: []string{"Cuéntame de ti"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if question != "¿Qué proyecto te enorgullece?" {
		t.Fatalf("unexpected question: %q", question)
	}
	for _, want := range []string{"Analista de datos", "pregunta 2 de 4", "habilidades", "- Cuéntame de ti"} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, stub.lastPrompt)
		}
	}
}

func TestGenerateQuestionRequiresRole(t *testing.T) {
	interviewer := NewInterviewer(&stubGenerator{response: "q"}, nil, 0)
	if _, err := interviewer.GenerateQuestion(context.Background(), ai.QuestionRequest{}); err == nil {
		t.Fatal("expected error for empty role")
	}
}

func TestScoreAnswerParsesFencedJSON(t *testing.T) {
	stub := &stubGenerator{response: "Aquí tienes:\n```json\n{\"score\": \"8\", \"summary\": \"Buena\", \"strengths\": [\"claridad\"], \"weaknesses\": [\"brevedad\"], \"suggestions\": [\"ejemplos\", \"\"]}\n```"}
	interviewer := NewInterviewer(stub, zap.NewNop(), 100)

	feedback, err := interviewer.ScoreAnswer(context.Background(), "Ventas", "¿Por qué ventas?", "Porque me gusta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feedback == nil {
		t.Fatal("expected feedback")
	}
	if feedback.Score != 8 || feedback.Summary != "Buena" {
		t.Fatalf("unexpected feedback: %+v", feedback)
	}
	if len(feedback.Suggestions) != 1 || feedback.Strengths[0] != "claridad" {
		t.Fatalf("unexpected lists: %+v", feedback)
	}
	if stub.jsonCalls != 1 {
		t.Fatalf("expected JSON mode call")
	}
	if !strings.Contains(stub.lastPrompt, "Porque me gusta") {
		t.Fatalf("prompt missing transcript")
	}
}

func TestScoreAnswerMalformedReturnsNil(t *testing.T) {
	for _, raw := range []string{"no json here", `{"summary": "sin puntaje"}`, `{"score": `} {
		interviewer := NewInterviewer(&stubGenerator{response: raw}, zap.NewNop(), 100)
		feedback, err := interviewer.ScoreAnswer(context.Background(), "r", "q", "a")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if feedback != nil {
			t.Fatalf("expected nil feedback for %q, got %+v", raw, feedback)
		}
	}
}

func TestScoreAnswerPropagatesModelError(t *testing.T) {
	interviewer := NewInterviewer(&stubGenerator{err: errors.New("down")}, zap.NewNop(), 100)
	if _, err := interviewer.ScoreAnswer(context.Background(), "r", "q", "a"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClampScore(t *testing.T) {
	cases := map[float64]int{-3: 1, 0: 1, 6.6: 7, 10: 10, 42: 10}
	for in, want := range cases {
		if got := clampScore(in); got != want {
			t.Fatalf("clampScore(%v) = %d, want %d", in, got, want)
		}
	}
}
