package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/media"
	"go.uber.org/zap"
)

const (
	LabelYes      = "Sí"
	LabelNo       = "No"
	LabelContinue = "✅ Sí, continuar"
	LabelStop     = "⏹️ Detener"

	stepAsk     = "ask"
	stepPersist = "persist"
)

const (
	interviewRoleText = "🎭 *Simulación de Entrevista Profesional*\n\n" +
		"¡Excelente elección! Voy a ayudarte a practicar y perfeccionar tus habilidades de entrevista.\n\n" +
		"🎯 *¿Para qué puesto quieres practicar?*\nDescribe el puesto y la industria donde te gustaría trabajar.\n\n" +
		"📝 *Ejemplos:*\n• \"Practicante de ventas en Coca Cola\"\n• \"Analista de marketing en banca\"\n• \"Desarrollador junior en startup\"\n\n" +
		"✍️ Escribe el puesto que te interesa:"
	interviewStart = "✅ *¡Perfecto! Simulación configurada para: %s*\n\n" +
		"🎤 *Proceso de la entrevista:*\n\n" +
		"📋 *%d preguntas profesionales* específicas para tu puesto\n" +
		"🎙️ *Responde con audio o video* (más realista)\n" +
		"📊 *Retroalimentación detallada* después de cada respuesta\n\n" +
		"¿Estás listo para comenzar tu simulación?"
	interviewConsentInvalid = "❌ *Respuesta no válida*\n\nPor favor, selecciona una de las opciones disponibles: \"Sí\" o \"No\"."
	interviewCancelled      = "❌ *Simulación cancelada*\n\nHas decidido no continuar con la simulación. Recuerda que practicar entrevistas te ayuda a mejorar tus oportunidades laborales.\n\n¡Estoy aquí cuando quieras intentarlo de nuevo! 👋"
	interviewQuestion       = "🎯 *Pregunta %d de %d*\n\n%s\n\n🎙️ *Responde con un mensaje de audio o video para una experiencia más realista*"
	interviewProcessing     = "🔄 *Analizando tu respuesta...*\n\n🤖 Procesando con IA para darte retroalimentación profesional. Por favor espera unos segundos."
	interviewConfirm        = "✅ *Pregunta %d completada*\n\n¿Quieres continuar con la pregunta %d de %d?"
	interviewQuestionFailed = "⚠️ No pude generar la siguiente pregunta en este momento."
	interviewNoFeedback     = "⚠️ *Retroalimentación no disponible*\n\nNo pude evaluar tu respuesta %d en este momento, pero quedó guardada."
	interviewFinished       = "🎉 *¡Felicitaciones! Simulación completada exitosamente*\n\n" +
		"✅ *Has terminado las %d preguntas*\n📊 *Revisa toda la retroalimentación* que recibiste\n💪 *Aplica los consejos* en tus próximas entrevistas\n\n" +
		"💡 *Tip: Puedes repetir la simulación cuando quieras para seguir mejorando.*"
	interviewStopped = "⏹️ *Simulación detenida*\n\nGuardé tus %d respuestas. Puedes repetir la simulación desde el menú cuando quieras. 👋"
)

type interviewState struct {
	Role    string            `json:"role"`
	Started time.Time         `json:"started"`
	Answers []analysis.Answer `json:"answers,omitempty"`
}

// current is the question waiting for an answer, if any.
func (s *interviewState) current() *analysis.Answer {
	if len(s.Answers) == 0 {
		return nil
	}
	return &s.Answers[len(s.Answers)-1]
}

func (s *interviewState) previous() []string {
	out := make([]string, 0, len(s.Answers))
	for _, a := range s.Answers {
		out = append(out, a.Question)
	}
	return out
}

func (b *builder) interview() *conversation.Flow {
	cancel := conversation.Labels{LabelCancel}
	consent := conversation.Labels{LabelYes, LabelNo}
	next := conversation.Labels{LabelContinue, LabelStop}
	return &conversation.Flow{
		ID: FlowInterview,
		Steps: []conversation.Step{
			conversation.Ask("role",
				conversation.Static(conversation.Buttons{Body: interviewRoleText, Labels: cancel}),
				cancel,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					if _, ok := t.Choice(); ok {
						return conversation.End(conversation.Say(interviewCancelled))
					}
					return storeRole(t, &interviewState{Role: t.Input(), Started: b.Now().UTC()})
				},
			),
			conversation.Ask("consent", consentPrompt, consent,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelYes:
						return conversation.Advance()
					case LabelNo:
						return conversation.End(conversation.Say(interviewCancelled))
					}
					return conversation.Fallback(conversation.Buttons{Body: interviewConsentInvalid, Labels: consent})
				},
			),
			conversation.Do(stepAsk, b.askQuestion),
			conversation.Ask("answer", questionPrompt, nil, b.scoreAnswer),
			conversation.Ask("continue", confirmPrompt, next,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelContinue:
						return conversation.GotoStep(FlowInterview, stepAsk)
					case LabelStop:
						return conversation.GotoStep(FlowInterview, stepPersist)
					}
					return conversation.Fallback()
				},
			),
			conversation.Do(stepPersist, b.persistInterview),
		},
	}
}

func consentPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, _ := conversation.State[interviewState](t)
	return []conversation.Message{conversation.Buttons{
		Body:   fmt.Sprintf(interviewStart, st.Role, analysis.InterviewLength),
		Labels: []string{LabelYes, LabelNo},
	}}
}

func (b *builder) askQuestion(ctx context.Context, t *conversation.Turn) conversation.Result {
	st, err := conversation.State[interviewState](t)
	if err != nil {
		return failed(ctx, t, interviewQuestionFailed, err)
	}

	number := len(st.Answers) + 1
	question, err := b.Analysis.Question(ctx, st.Role, number, st.previous())
	if err != nil {
		t.Send(ctx, conversation.Say(interviewQuestionFailed))
		t.Logger.Error("question generation failed", zap.Int("question", number), zap.Error(err))
		if len(st.Answers) > 0 {
			b.record(ctx, t, &st)
		}
		return conversation.Goto(FlowFallback, 0)
	}

	st.Answers = append(st.Answers, analysis.Answer{Number: number, Question: question})
	if err := t.Store(&st); err != nil {
		return failed(ctx, t, interviewQuestionFailed, err)
	}
	return conversation.Advance()
}

func questionPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, _ := conversation.State[interviewState](t)
	current := st.current()
	if current == nil {
		return nil
	}
	return []conversation.Message{
		conversation.Say(fmt.Sprintf(interviewQuestion, current.Number, analysis.InterviewLength, current.Question)),
	}
}

func (b *builder) scoreAnswer(ctx context.Context, t *conversation.Turn) conversation.Result {
	if err := media.RequireAudioOrVideo(t.Event); err != nil {
		t.Logger.Info("capture rejected", zap.Error(err))
		return conversation.Fallback(conversation.Say(rejection(err, answerWrongFormat, answerWrongClass)))
	}

	st, err := conversation.State[interviewState](t)
	if err != nil {
		return failed(ctx, t, interviewQuestionFailed, err)
	}
	current := st.current()
	if current == nil {
		return conversation.GotoStep(FlowInterview, stepAsk)
	}

	current.MediaURL, current.Transcript = b.transcribe(ctx, t, current.Number)

	t.Send(ctx, conversation.Say(interviewProcessing))

	current.Feedback = b.Analysis.Score(ctx, st.Role, current.Question, current.Transcript)
	last := current.Number >= analysis.InterviewLength
	if current.Feedback != nil {
		t.Send(ctx, conversation.Say(FeedbackMessage(current.Number, current.Feedback, last)))
	} else {
		t.Logger.Warn("feedback unavailable", zap.Int("question", current.Number))
		t.Send(ctx, conversation.Say(fmt.Sprintf(interviewNoFeedback, current.Number)))
	}

	if err := t.Store(&st); err != nil {
		return failed(ctx, t, interviewQuestionFailed, err)
	}

	if last {
		return conversation.GotoStep(FlowInterview, stepPersist)
	}
	return conversation.Advance()
}

// transcribe stores the recorded answer and returns its URL and transcript.
// Failures fall back to a placeholder transcript.
func (b *builder) transcribe(ctx context.Context, t *conversation.Turn, number int) (string, string) {
	mimeType := t.Event.MimeType()
	name := media.ObjectName(fmt.Sprintf("interview_%s_q%d", t.UserID(), number), mimeType)

	stored, err := b.Media.Save(ctx, t.Event.URL, mimeType, media.CategoryFor(mimeType), name)
	if err != nil {
		t.Logger.Warn("saving answer failed", zap.Int("question", number), zap.Error(err))
		return "", analysis.TranscriptUnavailable
	}

	text, ok := b.Media.Transcribe(ctx, media.Audio{URL: stored.URL, Data: stored.Data, MimeType: mimeType})
	if !ok {
		return stored.URL, analysis.TranscriptUnavailable
	}
	return stored.URL, text
}

func confirmPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, _ := conversation.State[interviewState](t)
	done := len(st.Answers)
	return []conversation.Message{conversation.Buttons{
		Body:   fmt.Sprintf(interviewConfirm, done, done+1, analysis.InterviewLength),
		Labels: []string{LabelContinue, LabelStop},
	}}
}

func (b *builder) persistInterview(ctx context.Context, t *conversation.Turn) conversation.Result {
	st, err := conversation.State[interviewState](t)
	if err != nil {
		return failed(ctx, t, notSaved, err)
	}

	answered := b.record(ctx, t, &st)

	msg := fmt.Sprintf(interviewFinished, analysis.InterviewLength)
	if answered < analysis.InterviewLength {
		msg = fmt.Sprintf(interviewStopped, answered)
	}
	return conversation.End(conversation.Say(msg))
}

// record appends the answered questions to the user's history and returns how
// many were kept. Persistence failures are reported but do not end the flow.
func (b *builder) record(ctx context.Context, t *conversation.Turn, st *interviewState) int {
	iv, err := b.Analysis.RecordInterview(ctx, t.UserID(), st.Role, st.Answers, st.Started)
	if err != nil {
		if !errors.Is(err, analysis.ErrNotPersisted) {
			t.Logger.Error("recording interview failed", zap.Error(err))
		}
		t.Send(ctx, conversation.Say(notSaved))
	}
	if iv == nil {
		return 0
	}
	t.Logger.Info("interview recorded", zap.String("interview_id", iv.ID), zap.Int("answers", len(iv.Entries)))
	return len(iv.Entries)
}

// FeedbackMessage renders the evaluation of one answer.
func FeedbackMessage(number int, fb *ai.Feedback, last bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *RETROALIMENTACIÓN - PREGUNTA %d*\n\n", number)
	fmt.Fprintf(&sb, "🎯 *Puntuación:* %d/10\n\n", fb.Score)
	fmt.Fprintf(&sb, "📝 *Resumen:*\n%s\n\n", fb.Summary)
	writeNumbered(&sb, "✅ *Fortalezas:*", fb.Strengths)
	writeNumbered(&sb, "⚠️ *Áreas de mejora:*", fb.Weaknesses)
	writeNumbered(&sb, "💡 *Sugerencias:*", fb.Suggestions)
	sb.WriteString("---\n")
	if last {
		sb.WriteString("🎉 *¡Última pregunta completada!*")
	} else {
		sb.WriteString("🚀 *¡Continuemos con la siguiente pregunta!*")
	}
	return sb.String()
}

func writeNumbered(sb *strings.Builder, title string, items []string) {
	sb.WriteString(title)
	sb.WriteString("\n")
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
	sb.WriteString("\n")
}
