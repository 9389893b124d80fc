package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/store"
	"go.uber.org/zap"
)

const (
	// InterviewLength is the number of questions in one simulation.
	InterviewLength = 4

	TranscriptUnavailable = "Audio recibido - transcripción no disponible"
	FeedbackUnavailable   = "Análisis no disponible"
)

// themes are asked in this order, one per question.
var themes = [InterviewLength]string{
	"experiencia profesional y trayectoria relevante",
	"habilidades profesionales o conocimientos técnicos relevantes para el rol",
	"trabajo en equipo, colaboración o gestión de proyectos",
	"manejo de situaciones complejas, resolución de problemas o toma de decisiones",
}

// Answer is one question of an interview in progress.
type Answer struct {
	Number     int          `json:"number"`
	Question   string       `json:"question"`
	Transcript string       `json:"transcript,omitempty"`
	MediaURL   string       `json:"media_url,omitempty"`
	Feedback   *ai.Feedback `json:"feedback,omitempty"`
}

// Question generates question number (1-based) for role.
func (o *Orchestrator) Question(ctx context.Context, role string, number int, previous []string) (string, error) {
	if o.questions == nil {
		return "", errors.New("question generator is not configured")
	}
	if number < 1 || number > InterviewLength {
		return "", fmt.Errorf("question number %d out of range", number)
	}

	return o.questions.GenerateQuestion(ctx, ai.QuestionRequest{
		Role:     role,
		Number:   number,
		Total:    InterviewLength,
		Theme:    themes[number-1],
		Previous: previous,
	})
}

// Score evaluates an answer. Nil means feedback is unavailable.
func (o *Orchestrator) Score(ctx context.Context, role, question, transcript string) *ai.Feedback {
	if o.scorer == nil {
		return nil
	}
	feedback, err := o.scorer.ScoreAnswer(ctx, role, question, transcript)
	if err != nil {
		o.logger.Warn("answer scoring failed", zap.Error(err))
		return nil
	}
	return feedback
}

// RecordInterview appends the completed part of an interview to the user's
// history.
func (o *Orchestrator) RecordInterview(ctx context.Context, userID, role string, answers []Answer, started time.Time) (*store.Interview, error) {
	iv := BuildInterview(userID, role, answers, started, o.now())
	if err := o.records.AppendInterview(ctx, iv); err != nil {
		o.logger.Error("interview not saved",
			zap.String("user", userID),
			zap.String("interview_id", iv.ID),
			zap.Error(err),
		)
		return iv, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	return iv, nil
}

// BuildInterview keeps only answers that have both a question and a
// transcript. Missing feedback is recorded as a zero score.
func BuildInterview(userID, role string, answers []Answer, started, completed time.Time) *store.Interview {
	iv := &store.Interview{
		ID:          uuid.NewString(),
		UserID:      userID,
		Position:    role,
		StartedAt:   started.UTC(),
		CompletedAt: completed.UTC(),
	}

	for _, a := range answers {
		if a.Question == "" || a.Transcript == "" {
			continue
		}
		entry := store.InterviewEntry{
			Number:     a.Number,
			Question:   a.Question,
			Transcript: a.Transcript,
			MediaURL:   a.MediaURL,
			Summary:    FeedbackUnavailable,
		}
		if fb := a.Feedback; fb != nil {
			entry.Score = fb.Score
			entry.Summary = fb.Summary
			entry.Strengths = fb.Strengths
			entry.Weaknesses = fb.Weaknesses
			entry.Suggestions = fb.Suggestions
		}
		iv.Entries = append(iv.Entries, entry)
	}
	return iv
}
