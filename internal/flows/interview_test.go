package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInterview(h *harness) {
	h.t.Helper()
	h.text("hola")
	h.text(LabelInterview)
	h.text("Analista de datos")
	h.requireSaw("Simulación configurada para: Analista de datos")
	h.text("Sí")
	h.requireAt(FlowInterview, 3)
}

func TestInterviewAnswerRequiresAudioOrVideo(t *testing.T) {
	h := newHarness(t)
	h.register(0)
	startInterview(h)
	h.requireSaw("Pregunta 1 de 4")

	h.sender.reset()
	h.text("Tengo cinco años de experiencia")
	h.requireSaw("Responde con un mensaje de audio o video")
	h.requireAt(FlowInterview, 3)

	h.file(conversation.EventDocument, "application/pdf")
	h.requireAt(FlowInterview, 3)
	assert.Equal(t, 2, h.session().Retries)
	assert.Empty(t, h.media.saved)
}

func TestInterviewStoppedAfterSecondQuestionKeepsTwoAnswers(t *testing.T) {
	h := newHarness(t)
	h.register(0)
	startInterview(h)

	h.file(conversation.EventAudio, "audio/ogg; codecs=opus")
	h.requireSaw("RETROALIMENTACIÓN - PREGUNTA 1")
	h.requireAt(FlowInterview, 4)

	h.text(LabelContinue)
	h.requireSaw("Pregunta 2 de 4")
	h.requireAt(FlowInterview, 3)

	h.file(conversation.EventVideo, "video/mp4")
	h.requireAt(FlowInterview, 4)

	h.sender.reset()
	h.text(LabelStop)
	h.requireSaw("Guardé tus 2 respuestas")
	assert.Nil(t, h.session())

	interviews, err := h.store.ListInterviews(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, interviews, 1)
	iv := interviews[0]
	assert.Equal(t, "Analista de datos", iv.Position)
	require.Len(t, iv.Entries, 2)
	assert.Equal(t, 1, iv.Entries[0].Number)
	assert.Equal(t, 2, iv.Entries[1].Number)
	assert.Equal(t, 7, iv.Entries[1].Score)
	assert.Equal(t, "Trabajé tres años como analista", iv.Entries[0].Transcript)
	assert.True(t, strings.HasPrefix(iv.Entries[0].MediaURL, "https://files.test/audios/"))
	assert.True(t, strings.HasPrefix(iv.Entries[1].MediaURL, "https://files.test/videos/"))
}

func TestInterviewCompletesAllQuestions(t *testing.T) {
	h := newHarness(t)
	h.register(0)
	h.media.transcript = ""
	h.analysis.feedback = nil
	startInterview(h)

	for i := 1; i <= analysis.InterviewLength; i++ {
		h.file(conversation.EventAudio, "audio/ogg")
		if i < analysis.InterviewLength {
			h.text(LabelContinue)
		}
	}

	h.requireSaw("Simulación completada exitosamente")
	assert.False(t, h.saw("RETROALIMENTACIÓN -"), "no feedback message without a score")
	h.requireSaw("Retroalimentación no disponible")
	for i := 1; i <= analysis.InterviewLength; i++ {
		h.requireSaw(fmt.Sprintf("No pude evaluar tu respuesta %d", i))
	}
	assert.Nil(t, h.session())
	assert.Equal(t, analysis.InterviewLength, h.analysis.questions)

	interviews, err := h.store.ListInterviews(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, interviews, 1)
	require.Len(t, interviews[0].Entries, analysis.InterviewLength)
	for _, e := range interviews[0].Entries {
		assert.Equal(t, analysis.TranscriptUnavailable, e.Transcript)
		assert.Equal(t, analysis.FeedbackUnavailable, e.Summary)
		assert.Zero(t, e.Score)
	}
}

func TestInterviewDeclinedConsent(t *testing.T) {
	h := newHarness(t)
	h.register(0)

	h.text("hola")
	h.text(LabelInterview)
	h.text("Contador")
	h.text("quizás")
	h.requireSaw("Respuesta no válida")
	h.requireAt(FlowInterview, 1)

	h.text("No")
	h.requireSaw("Simulación cancelada")
	assert.Nil(t, h.session())
	assert.Zero(t, h.analysis.questions)
}

func TestInterviewQuestionFailureGoesToFallback(t *testing.T) {
	h := newHarness(t)
	h.register(0)
	h.analysis.questionErr = errors.New("both models failed")

	h.text("hola")
	h.text(LabelInterview)
	h.text("Contador")
	h.text("Sí")

	h.requireSaw(interviewQuestionFailed)
	h.requireAt(FlowFallback, 0)
}

func TestFeedbackMessage(t *testing.T) {
	msg := FeedbackMessage(3, &ai.Feedback{
		Score:       8,
		Summary:     "Respuesta sólida",
		Strengths:   []string{"Estructura", "Ejemplos"},
		Weaknesses:  []string{"Muy larga"},
		Suggestions: []string{"Resume el cierre"},
	}, false)

	for _, want := range []string{
		"RETROALIMENTACIÓN - PREGUNTA 3",
		"8/10",
		"1. Estructura\n2. Ejemplos",
		"1. Muy larga",
		"1. Resume el cierre",
		"Continuemos con la siguiente pregunta",
	} {
		assert.Contains(t, msg, want)
	}

	last := FeedbackMessage(4, &ai.Feedback{Score: 5}, true)
	assert.Contains(t, last, "Última pregunta completada")
}
