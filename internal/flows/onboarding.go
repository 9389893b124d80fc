package flows

import (
	"context"
	"regexp"
	"strings"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/store"
	"go.uber.org/zap"
)

const (
	LabelReviewCV  = "📄 Revisar mi CV"
	LabelInterview = "🎯 Simulador"
	LabelJobs      = "💼 Trabajos"

	LabelAccept  = "Acepto"
	LabelDecline = "No acepto"

	LabelCancel = "❌ Cancelar"
	LabelHome   = "Volver al inicio"
)

var menuLabels = conversation.Labels{LabelReviewCV, LabelInterview, LabelJobs}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	welcomeText = "🚀 *¡Hola! Soy tu asistente virtual de Worky* 🤖\n\n" +
		"¡Perfecto! Ya estás registrado y listo para impulsar tu carrera profesional.\n\n" +
		"✨ *Servicios disponibles:*\n" +
		"🔍 *Análisis de CV personalizado* - Optimiza tu currículum\n" +
		"🎯 *Simulación de entrevistas* - Practica y mejora tus habilidades\n" +
		"💼 *Búsqueda de trabajos* - Encuentra oportunidades que se ajusten a tu perfil\n\n" +
		"¿Con qué servicio te gustaría comenzar?"
	menuRetry = "¡Ups! 😅 No pude entender tu respuesta.\n\n" +
		"Por favor, usa uno de los botones disponibles:\n\n📄 Revisar mi CV\n🎯 Simulador\n💼 Trabajos"

	termsText = "🎉 *¡Bienvenido a Worky!* ✨\n\n" +
		"Antes de comenzar, necesitamos que revises y aceptes nuestros términos.\n\n" +
		"📋 *Documentos importantes:*\n" +
		"• Términos y condiciones: https://www.workin2.com/terminos\n" +
		"• Política de privacidad: https://www.workin2.com/privacidad\n\n" +
		"Al continuar, confirmas que has leído y aceptas nuestros términos y política de privacidad.\n\n" +
		"¿Estás de acuerdo en continuar?"
	termsDeclined = "🔒 Para usar Worky necesitas aceptar los términos y la política de privacidad. ¿Deseas continuar?"

	emailText = "📧 *Registro de correo electrónico*\n\n" +
		"Para brindarte una experiencia personalizada, necesito tu correo electrónico universitario.\n\n" +
		"✉️ Por favor, ingresa tu correo electrónico:"
	emailInvalid   = "Por favor, ingresa un correo electrónico válido."
	emailCancelled = "❌ *Registro cancelado*\n\nHas cancelado el proceso de registro. Si cambias de opinión, puedes volver a iniciar el proceso en cualquier momento.\n\n¡Hasta pronto! 👋"
	emailFailed    = "⚠️ No pudimos completar tu registro en este momento."

	fallbackText = "Lo siento, ocurrió un problema en nuestro servidor. Vuelva a intentarlo más tarde o contacte a soporte si el problema persiste."
	thanksText   = "¡Gracias por utilizar nuestro servicio! Si tienes más preguntas o necesitas ayuda adicional, no dudes en contactarnos. 😊"
)

func (b *builder) welcome() *conversation.Flow {
	return &conversation.Flow{
		ID:         FlowWelcome,
		Keywords:   []string{"!start", "!reset", "menu", "inicio"},
		Welcome:    true,
		Onboarding: true,
		Steps: []conversation.Step{
			conversation.Do("registered", func(ctx context.Context, t *conversation.Turn) conversation.Result {
				accepted, err := b.Users.TermsAccepted(ctx, t.UserID())
				if err != nil {
					t.Logger.Error("checking registration failed", zap.Error(err))
					return conversation.Goto(FlowFallback, 0)
				}
				if !accepted {
					return conversation.Goto(FlowTerms, 0)
				}
				return conversation.Advance()
			}),
			conversation.Ask("menu",
				conversation.Static(conversation.Buttons{Body: welcomeText, Labels: menuLabels}),
				menuLabels,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelReviewCV:
						return conversation.Goto(FlowCV, 0)
					case LabelInterview:
						return conversation.Goto(FlowInterview, 0)
					case LabelJobs:
						return conversation.Goto(FlowJobs, 0)
					}
					return conversation.Fallback(conversation.Buttons{Body: menuRetry, Labels: menuLabels})
				},
			),
		},
	}
}

func (b *builder) terms() *conversation.Flow {
	labels := conversation.Labels{LabelAccept, LabelDecline}
	return &conversation.Flow{
		ID:         FlowTerms,
		Onboarding: true,
		Steps: []conversation.Step{
			conversation.Ask("accept",
				conversation.Static(conversation.Buttons{Body: termsText, Labels: labels}),
				labels,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					if choice, _ := t.Choice(); choice == LabelAccept {
						return conversation.Goto(FlowEmail, 0)
					}
					return conversation.Fallback(conversation.Buttons{Body: termsDeclined, Labels: labels})
				},
			),
		},
	}
}

func (b *builder) email() *conversation.Flow {
	labels := conversation.Labels{LabelCancel}
	return &conversation.Flow{
		ID:         FlowEmail,
		Onboarding: true,
		Steps: []conversation.Step{
			conversation.Ask("address",
				conversation.Static(conversation.Buttons{Body: emailText, Labels: labels}),
				labels,
				func(ctx context.Context, t *conversation.Turn) conversation.Result {
					if _, ok := t.Choice(); ok {
						return conversation.End(conversation.Say(emailCancelled))
					}

					address := strings.ToLower(t.Input())
					if !emailPattern.MatchString(address) {
						return conversation.Fallback(conversation.Say(emailInvalid))
					}

					return b.register(ctx, t, address)
				},
			),
		},
	}
}

// register creates the user with accepted terms and grants the welcome
// credits once per phone.
func (b *builder) register(ctx context.Context, t *conversation.Turn, address string) conversation.Result {
	user := &store.User{
		Phone:         t.UserID(),
		Name:          t.Event.Name,
		Email:         address,
		TermsAccepted: true,
	}
	if err := b.Users.SaveUser(ctx, user); err != nil {
		return failed(ctx, t, emailFailed, err)
	}

	if err := b.Ledger.Grant(ctx, t.UserID(), b.Config.WelcomeCredits, "welcome:"+t.UserID()); err != nil {
		t.Logger.Error("granting welcome credits failed", zap.Error(err))
	}

	t.Logger.Info("user registered")
	return home()
}

func (b *builder) fallback() *conversation.Flow {
	return deadEnd(FlowFallback, fallbackText)
}

func (b *builder) thanks() *conversation.Flow {
	return deadEnd(FlowThanks, thanksText)
}

// deadEnd is a single message offering the way back to the menu. Any reply
// goes there.
func deadEnd(id conversation.FlowID, body string) *conversation.Flow {
	labels := conversation.Labels{LabelHome}
	return &conversation.Flow{
		ID: id,
		Steps: []conversation.Step{
			conversation.Ask("home",
				conversation.Static(conversation.Buttons{Body: body, Labels: labels}),
				labels,
				func(context.Context, *conversation.Turn) conversation.Result {
					return home()
				},
			),
		},
	}
}
