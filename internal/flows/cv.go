package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/media"
	"go.uber.org/zap"
)

const (
	cvRoleText = "📄 *Análisis Profesional de CV*\n\n" +
		"¡Excelente decisión! Voy a revisar tu currículum y darte retroalimentación detallada para optimizarlo.\n\n" +
		"🎯 *¿Para qué puesto quieres optimizar tu CV?*\nEsto me ayudará a darte consejos específicos para esa industria.\n\n" +
		"📝 *Ejemplos:*\n• \"Practicante de ventas en Coca Cola\"\n• \"Analista de marketing en banca\"\n• \"Ingeniero de software en tecnología\"\n\n" +
		"✍️ Describe el puesto que te interesa:"
	cvDocumentText = "✅ *¡Perfecto!* He registrado el puesto de interés.\n\n" +
		"📎 *Por favor, envía tu CV en formato PDF*\n\n" +
		"🔍 *¿Qué analizaré?*\n• Estructura y formato del CV\n• Compatibilidad con sistemas ATS\n• Palabras clave relevantes para tu industria\n• Fortalezas y áreas de mejora\n\n" +
		"⏱️ El análisis toma 2-3 minutos"
	cvAnalyzing = "📄 *¡Gracias por compartir tu CV!* 🙏\n\n" +
		"Estoy analizándolo detalladamente para ofrecerte retroalimentación valiosa. Este proceso puede tomar entre 2-3 minutos... ⏳"
	cvDone      = "✅ *¡Análisis completado!* 🎉\n\nHe revisado tu CV y he preparado un informe detallado con todas mis observaciones."
	cvNoReport  = "✅ *¡Análisis completado!*\n\nEl informe aún no está disponible para descarga. Inténtalo de nuevo más tarde."
	cvCancelled = "❌ *Análisis cancelado*\n\nHas cancelado el análisis de CV. Si cambias de opinión, puedes volver a intentarlo desde el menú principal.\n\n¡Estoy aquí cuando me necesites! 👋"
	roleMissing = "✍️ Escribe el puesto que te interesa en un mensaje de texto."
	notSaved    = "⚠️ El proceso terminó, pero no pudimos guardarlo en tu historial."
)

type cvState struct {
	Role string `json:"role"`
}

func (b *builder) cv() *conversation.Flow {
	cancel := conversation.Labels{LabelCancel}
	return &conversation.Flow{
		ID: FlowCV,
		Steps: []conversation.Step{
			conversation.Do("gate", b.gate),
			conversation.Ask("role",
				conversation.Static(conversation.Buttons{Body: cvRoleText, Labels: cancel}),
				cancel,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					if _, ok := t.Choice(); ok {
						return conversation.End(conversation.Say(cvCancelled))
					}
					return storeRole(t, &cvState{Role: t.Input()})
				},
			),
			conversation.Ask("document",
				conversation.Static(conversation.Buttons{Body: cvDocumentText, Labels: cancel}),
				cancel,
				b.reviewCV,
			),
		},
	}
}

func (b *builder) reviewCV(ctx context.Context, t *conversation.Turn) conversation.Result {
	if _, ok := t.Choice(); ok && !t.Event.HasMedia() {
		return conversation.End(conversation.Say(cvCancelled))
	}
	if err := media.RequirePDF(t.Event); err != nil {
		t.Logger.Info("capture rejected", zap.Error(err))
		return conversation.Fallback(conversation.Buttons{
			Body:   rejection(err, pdfWrongFormat, pdfWrongClass),
			Labels: conversation.Labels{LabelCancel},
		})
	}

	st, err := conversation.State[cvState](t)
	if err != nil {
		return failed(ctx, t, analysis.UserMessage(err), err)
	}

	t.Send(ctx, conversation.Say(cvAnalyzing))

	stored, err := b.Media.Save(ctx, t.Event.URL, t.Event.MimeType(), media.CategoryCV, documentName(t))
	if err != nil {
		if unreadable(err) {
			t.Logger.Warn("cv download failed", zap.Error(err))
			return conversation.Fallback(conversation.Say(downloadFailed))
		}
		return failed(ctx, t, analysis.UserMessage(err), err)
	}

	record, err := b.Analysis.AnalyzeCV(ctx, t.UserID(), stored.URL, st.Role, t.Event.Name)
	if record == nil || (err != nil && !errors.Is(err, analysis.ErrNotPersisted)) {
		return failed(ctx, t, analysis.UserMessage(err), err)
	}

	b.charge(ctx, t, "cv:"+record.ID)

	var msgs []conversation.Message
	if record.ReportURL != "" {
		msgs = append(msgs, conversation.Media{URL: record.ReportURL, Caption: cvDone})
	} else {
		msgs = append(msgs, conversation.Say(cvNoReport))
	}
	if err != nil {
		msgs = append(msgs, conversation.Say(notSaved))
	}
	return conversation.End(msgs...)
}

// documentName is the stored name of a CV: {user}-{file id}.pdf.
func documentName(t *conversation.Turn) string {
	id := t.Event.ID
	if t.Event.File != nil && t.Event.File.ID != "" {
		id = t.Event.File.ID
	}
	return fmt.Sprintf("%s-%s.pdf", t.UserID(), id)
}

// storeRole keeps a typed role state and advances. Media without a caption
// carries no role.
func storeRole(t *conversation.Turn, st any) conversation.Result {
	if t.Input() == "" {
		return conversation.Fallback(conversation.Say(roleMissing))
	}
	if err := t.Store(st); err != nil {
		t.Logger.Error("storing role failed", zap.Error(err))
		return conversation.Goto(FlowFallback, 0)
	}
	return conversation.Advance()
}
