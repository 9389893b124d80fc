package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/jobs"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

const (
	LabelBack     = "🔙 Regresar"
	LabelReturn   = "🔙 Volver"
	LabelMoreJobs = "🔍 Ver más trabajos"

	// maxListed is the row limit of an interactive list.
	maxListed = 10
)

const (
	jobsRoleText = "💼 *Búsqueda de Oportunidades Laborales*\n\n" +
		"¡Excelente elección! Voy a ayudarte a encontrar trabajos que se ajusten a tu perfil.\n\n" +
		"🎯 *¿A qué puesto aspiras?*\nDescribe el puesto y la industria donde te gustaría trabajar.\n\n" +
		"📝 *Ejemplos:*\n• \"Practicante de ventas en Coca Cola\"\n• \"Analista de marketing en banca\"\n• \"Desarrollador frontend en startup tecnológica\"\n\n" +
		"✍️ Escribe tu respuesta:"
	jobsDocumentText = "✅ *¡Perfecto!* He registrado tu interés en ese puesto.\n\n" +
		"📎 *Por favor, envía tu CV en formato PDF*\n\n" +
		"💡 *¿Por qué necesito tu CV?*\n• Analizar tus habilidades y experiencia\n• Encontrar trabajos que se ajusten a tu perfil\n• Calcular tu compatibilidad con cada oportunidad"
	jobsAnalyzing = "📄 *¡Gracias por compartir tu CV!* 🙏\n\n" +
		"Estoy analizándolo para encontrar oportunidades. Este proceso puede tomar entre 2-3 minutos... ⏳"
	jobsFailed   = "⚠️ *Ocurrió un problema al procesar tu solicitud.*\n\nNuestro servidor está experimentando dificultades. Por favor, inténtalo más tarde."
	jobsNone     = "❌ *Análisis de CV completado.* 😔\n\nNo se encontraron oportunidades de trabajo que coincidan con tu CV y el puesto \"%s\"."
	jobsFound    = "✅ *Encontré %d oportunidades para \"%s\"*\n\nSelecciona una de la lista para ver el enlace de postulación:"
	jobsInvalid  = "❌ *Selección inválida*\n\nRecibí: \"%s\"\n\nPor favor, selecciona una opción de la lista."
	jobsThanks   = "¡Gracias por usar nuestro servicio! Si necesitas más ayuda, no dudes en contactarnos. 😊"
	jobsSelected = "✅ *Trabajo seleccionado*\n\n" +
		"🏢 *Empresa:* %s\n📋 *Título:* %s\n📍 *Ubicación:* %s\n🎯 *Match:* %s\n\n" +
		"🔗 *Link de postulación:*\n%s\n\n¡Buena suerte con tu postulación! 🍀"
)

type jobsState struct {
	Role     string        `json:"role"`
	Listings jobs.Listings `json:"listings"`
	Selected string        `json:"selected,omitempty"`
}

func (b *builder) jobs() *conversation.Flow {
	back := conversation.Labels{LabelBack}
	next := conversation.Labels{LabelMoreJobs, LabelReturn}
	return &conversation.Flow{
		ID: FlowJobs,
		Steps: []conversation.Step{
			conversation.Do("gate", b.gate),
			conversation.Ask("role",
				conversation.Static(conversation.Buttons{Body: jobsRoleText, Labels: back}),
				back,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					if _, ok := t.Choice(); ok {
						return home()
					}
					return storeRole(t, &jobsState{Role: t.Input()})
				},
			),
			conversation.Ask("document",
				conversation.Static(conversation.Buttons{Body: jobsDocumentText, Labels: back}),
				back,
				b.searchJobs,
			),
			conversation.Ask("select", listingsPrompt, back, selectListing),
			conversation.Ask("next", selectedPrompt, next,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelMoreJobs:
						return conversation.Goto(FlowJobs, 0)
					case LabelReturn:
						return home()
					}
					return conversation.End(conversation.Say(jobsThanks))
				},
			),
		},
	}
}

func (b *builder) searchJobs(ctx context.Context, t *conversation.Turn) conversation.Result {
	if _, ok := t.Choice(); ok && !t.Event.HasMedia() {
		return home()
	}
	if err := media.RequirePDF(t.Event); err != nil {
		t.Logger.Info("capture rejected", zap.Error(err))
		return conversation.Fallback(conversation.Buttons{
			Body:   rejection(err, pdfWrongFormat, pdfWrongClass),
			Labels: conversation.Labels{LabelBack},
		})
	}

	st, err := conversation.State[jobsState](t)
	if err != nil {
		return failed(ctx, t, jobsFailed, err)
	}

	t.Send(ctx, conversation.Say(jobsAnalyzing))

	stored, err := b.Media.Save(ctx, t.Event.URL, t.Event.MimeType(), media.CategoryCV, documentName(t))
	if err != nil {
		if unreadable(err) {
			t.Logger.Warn("cv download failed", zap.Error(err))
			return conversation.Fallback(conversation.Say(downloadFailed))
		}
		return failed(ctx, t, jobsFailed, err)
	}

	listings, err := b.Analysis.SearchJobs(ctx, t.UserID(), stored.URL, st.Role)
	if err != nil {
		return failed(ctx, t, analysis.UserMessage(err), err)
	}

	b.charge(ctx, t, "jobs:"+stored.Name)

	if listings.Len() == 0 {
		t.Send(ctx, conversation.Say(fmt.Sprintf(jobsNone, st.Role)))
		return home()
	}
	if listings.Len() > maxListed {
		listings.Items = listings.Items[:maxListed]
	}

	st.Listings = *listings
	st.Selected = ""
	if err := t.Store(&st); err != nil {
		return failed(ctx, t, jobsFailed, err)
	}

	t.Logger.Info("listings offered", zap.Int("count", listings.Len()))
	return conversation.Advance()
}

func listingsPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, err := conversation.State[jobsState](t)
	if err != nil {
		t.Logger.Warn("reading listings failed", zap.Error(err))
	}
	return []conversation.Message{
		conversation.Say(fmt.Sprintf(jobsFound, st.Listings.Len(), st.Role)),
		listingsMessage(&st.Listings),
	}
}

// listingsMessage renders listings as an interactive list whose row ids are
// the listing ids.
func listingsMessage(l *jobs.Listings) conversation.Message {
	rows := make([]conversation.Row, 0, l.Len())
	for _, listing := range l.Items {
		rows = append(rows, conversation.Row{
			ID:          listing.ID,
			Title:       utils.Truncate(listing.Title, 24),
			Description: utils.Truncate(rowDescription(listing), 72),
		})
	}
	return conversation.List{
		Header:   "Oportunidades laborales",
		Body:     "Estas son las ofertas que mejor se ajustan a tu perfil.",
		Footer:   "Selecciona una para ver el detalle",
		Button:   "Ver trabajos",
		Sections: []conversation.Section{{Title: "Trabajos", Rows: rows}},
	}
}

func rowDescription(l *jobs.Listing) string {
	parts := []string{l.Company, l.Location}
	if match := l.MatchLabel(); match != "" {
		parts = append(parts, match)
	}
	return strings.Join(parts, " · ")
}

func selectListing(ctx context.Context, t *conversation.Turn) conversation.Result {
	if _, ok := t.Choice(); ok {
		return home()
	}

	st, err := conversation.State[jobsState](t)
	if err != nil {
		return failed(ctx, t, jobsFailed, err)
	}

	listing := st.Listings.Find(t.Input())
	if listing == nil {
		return conversation.Fallback(
			conversation.Say(fmt.Sprintf(jobsInvalid, t.Input())),
			listingsMessage(&st.Listings),
		)
	}

	st.Selected = listing.ID
	if err := t.Store(&st); err != nil {
		return failed(ctx, t, jobsFailed, err)
	}
	return conversation.Advance()
}

func selectedPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, err := conversation.State[jobsState](t)
	if err != nil {
		t.Logger.Warn("reading selection failed", zap.Error(err))
	}
	listing := st.Listings.FindByID(st.Selected)
	if listing == nil {
		return []conversation.Message{conversation.Say(jobsThanks)}
	}

	match := utils.FirstNonEmpty(listing.MatchLabel(), "N/A")
	link := utils.FirstNonEmpty(listing.Link, "Sin link")
	return []conversation.Message{conversation.Buttons{
		Body:   fmt.Sprintf(jobsSelected, listing.Company, listing.Title, listing.Location, match, link),
		Labels: []string{LabelMoreJobs, LabelReturn},
	}}
}
