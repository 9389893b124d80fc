// Package ai declares the generative-model capabilities the conversation uses.
package ai

import "context"

// Feedback is the structured evaluation of one interview answer.
type Feedback struct {
	Score       int
	Summary     string
	Strengths   []string
	Weaknesses  []string
	Suggestions []string
	Raw         string
}

// QuestionRequest describes the interview question to generate.
type QuestionRequest struct {
	Role     string
	Number   int
	Total    int
	Theme    string
	Previous []string
}

// QuestionGenerator writes interview questions.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (string, error)
}

// AnswerScorer evaluates a transcribed answer. A nil Feedback with a nil
// error means the model output could not be interpreted.
type AnswerScorer interface {
	ScoreAnswer(ctx context.Context, role, question, transcript string) (*Feedback, error)
}

// ReceiptReader extracts the text of a payment screenshot. The output is
// free-form and expected to contain a small JSON object.
type ReceiptReader interface {
	ReadReceipt(ctx context.Context, image []byte, mimeType string) (string, error)
}
