package flows

import (
	"context"
	"fmt"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/credits"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

const (
	DefaultPayeePhone = "987654321"
	DefaultPayeeName  = "Francesco Lucchesi"

	LabelBuy   = "💳 Comprar"
	LabelRetry = "🔄 Reintentar"
)

const (
	creditsEmpty = "*Sin créditos disponibles*\n\n⚠️ Se te acabaron las revisiones de CV\n\n" +
		"Actualmente no tienes créditos disponibles para analizar más CVs. ¿Quieres comprar más revisiones o volver al menú principal?"
	creditsBalance = "💰 *Tus créditos*\n\nTienes %d %s disponibles.\n\n¿Quieres comprar más revisiones o volver al menú principal?"
	creditsInvalid = "Opción no válida. Por favor, selecciona una opción del menú."

	plansIntro = "¡Genial! Vamos a recargar tus créditos.\nLas revisiones incluyen:\n\n" +
		"☑️ Análisis de gaps en el CV\n☑️ Fortalezas y debilidades\n☑️ Perfil profesional\n☑️ Experiencia de trabajo\n☑️ Estructura del CV\n☑️ Y más..."
	plansFrom    = "Puedes adquirir paquetes de revisiones desde %s.\n\nLas revisiones las puedes usar para tu CV u otros CVs."
	plansInvalid = "❌ *Plan no válido*\n\nRecibí: \"%s\"\n\nPor favor, selecciona una opción de la lista."

	payInstructions = "💳 *Proceso de Pago*\n\n💰 *Monto a pagar:* %s\n🎯 *Créditos a recibir:* %d\n\n" +
		"📱 *Pasos para el pago:*\n1. Abre tu app de Yape o Plin\n2. Transfiere %s a:\n   📞 *Número:* %s\n   👤 *Nombre:* %s\n" +
		"3. Toma captura del voucher de pago\n4. Envía la imagen aquí\n\n" +
		"⚠️ *Importante:* La imagen debe ser clara y mostrar el monto, la fecha y destinatario correctos."
	payValidating = "🔄 *Validando tu comprobante...*\n\nEstoy verificando los datos del pago. Por favor espera unos segundos."
	paySuccess    = "✅ *¡Recarga exitosa!* 🎉\n\n💳 *Pago validado correctamente*\n🎯 *Créditos acreditados:* +%d\n💰 *Saldo actual:* %d créditos\n\n" +
		"🚀 *¡Ya puedes usar nuestros servicios!*\n• 📄 Revisión de CV (1 crédito)\n• 💼 Búsqueda de trabajos (1 crédito)\n\n¡Gracias por confiar en Worky! 🙌"
	payRejected = "❌ *Comprobante no válido* 😔\n\n🔍 *Detalles detectados:*\n💰 Monto: %s\n👤 Destinatario: %s\n\n" +
		"⚠️ *Problema:* %s\n\n💡 *Verifica que:*\n• El monto sea exactamente %s\n• El destinatario sea \"%s\"\n• La imagen sea clara y legible\n\n¿Qué deseas hacer?"
	payTechnical = "⚠️ *Error técnico*\n\nOcurrió un problema al validar tu comprobante. Esto puede deberse a:\n" +
		"• Problema temporal del servidor\n• Imagen muy pesada o borrosa\n• Conexión inestable\n\n¿Qué deseas hacer?"
	payTooMany = "⚠️ *Demasiados intentos*\n\nHas alcanzado el límite de intentos de validación. Por favor, verifica que tu comprobante sea correcto y vuelve a intentarlo más tarde.\n\n" +
		"Si necesitas ayuda, contacta a nuestro soporte.\n\n¡Hasta pronto!"
	payCancelled = "❌ *Recarga cancelada*\n\nHas cancelado el proceso de recarga. Si necesitas ayuda o tienes problemas con el pago, no dudes en contactarnos.\n\n¡Hasta pronto! 👋"
	payFailed    = "⚠️ Validamos tu pago, pero no pudimos acreditar tus créditos. Contacta a soporte con tu comprobante."
	payMismatch  = "Los datos no coinciden con el pago esperado"
)

type payState struct {
	PlanID   string `json:"plan_id"`
	Attempts int    `json:"attempts"`
	// last rejected verification, rendered by the retry step
	Amount    float64 `json:"amount,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Problem   string  `json:"problem,omitempty"`
	Technical bool    `json:"technical,omitempty"`
}

func (b *builder) credits() *conversation.Flow {
	labels := conversation.Labels{LabelBuy, LabelBack}
	return &conversation.Flow{
		ID:       FlowCredits,
		Keywords: []string{"!creditos", "creditos", "saldo"},
		Steps: []conversation.Step{
			conversation.Ask("balance", b.balancePrompt, labels,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelBuy:
						return conversation.Goto(FlowPlans, 0)
					case LabelBack:
						return home()
					}
					return conversation.Fallback(conversation.Buttons{Body: creditsInvalid, Labels: labels})
				},
			),
		},
	}
}

func (b *builder) balancePrompt(ctx context.Context, t *conversation.Turn) []conversation.Message {
	labels := []string{LabelBuy, LabelBack}
	balance, err := b.Ledger.Balance(ctx, t.UserID())
	if err != nil {
		t.Logger.Warn("reading balance failed", zap.Error(err))
	}
	if balance <= 0 {
		return []conversation.Message{conversation.Buttons{Body: creditsEmpty, Labels: labels}}
	}
	unit := "créditos"
	if balance == 1 {
		unit = "crédito"
	}
	return []conversation.Message{conversation.Buttons{Body: fmt.Sprintf(creditsBalance, balance, unit), Labels: labels}}
}

func (b *builder) plans() *conversation.Flow {
	back := conversation.Labels{LabelBack}
	return &conversation.Flow{
		ID: FlowPlans,
		Steps: []conversation.Step{
			conversation.Ask("choose",
				conversation.Static(
					conversation.Say(plansIntro),
					conversation.Say(fmt.Sprintf(plansFrom, credits.FormatPrice(b.cheapest()))),
					plansMessage(b.Plans),
				),
				back,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					if _, ok := t.Choice(); ok {
						return conversation.Goto(FlowCredits, 0)
					}
					plan, ok := b.Plans.Find(t.Input())
					if !ok {
						return conversation.Fallback(
							conversation.Say(fmt.Sprintf(plansInvalid, t.Input())),
							plansMessage(b.Plans),
						)
					}
					t.Logger.Info("plan selected", zap.String("plan", plan.ID))
					return conversation.Goto(FlowPay, 0).WithState(payState{PlanID: plan.ID})
				},
			),
		},
	}
}

func (b *builder) cheapest() float64 {
	low := b.Plans[0].Price
	for _, p := range b.Plans[1:] {
		low = min(low, p.Price)
	}
	return low
}

func plansMessage(c credits.Catalog) conversation.Message {
	rows := make([]conversation.Row, 0, len(c))
	for _, p := range c {
		rows = append(rows, conversation.Row{
			ID:          p.ID,
			Title:       utils.Truncate(p.Title(), 24),
			Description: utils.Truncate(p.Name, 72),
		})
	}
	return conversation.List{
		Header: "Planes de Créditos",
		Body: "Selecciona un plan de créditos para continuar con tu recarga. " +
			"Cada plan te ofrece diferentes cantidades de créditos a precios accesibles.",
		Footer:   "Selecciona un paquete para continuar.",
		Button:   "Paquetes",
		Sections: []conversation.Section{{Title: "Planes", Rows: rows}},
	}
}

func (b *builder) pay() *conversation.Flow {
	back := conversation.Labels{LabelBack}
	retry := conversation.Labels{LabelRetry, LabelCancel}
	return &conversation.Flow{
		ID: FlowPay,
		Steps: []conversation.Step{
			conversation.Ask("receipt", b.payPrompt, back, b.verifyReceipt),
			conversation.Ask("retry", b.retryPrompt, retry,
				func(_ context.Context, t *conversation.Turn) conversation.Result {
					choice, _ := t.Choice()
					switch choice {
					case LabelRetry:
						return conversation.Goto(FlowPay, 0)
					case LabelCancel:
						return conversation.End(conversation.Say(payCancelled))
					}
					return home()
				},
			),
		},
	}
}

// plan returns the plan selected for this payment.
func (b *builder) plan(t *conversation.Turn) (payState, credits.Plan, bool) {
	st, err := conversation.State[payState](t)
	if err != nil {
		t.Logger.Warn("reading payment state failed", zap.Error(err))
		return st, credits.Plan{}, false
	}
	for _, p := range b.Plans {
		if p.ID == st.PlanID {
			return st, p, true
		}
	}
	return st, credits.Plan{}, false
}

func (b *builder) payPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	_, plan, ok := b.plan(t)
	if !ok {
		return nil
	}
	price := credits.FormatPrice(plan.Price)
	return []conversation.Message{conversation.Buttons{
		Body:   fmt.Sprintf(payInstructions, price, plan.Credits, price, b.Config.PayeePhone, b.Config.PayeeName),
		Labels: []string{LabelBack},
	}}
}

func (b *builder) verifyReceipt(ctx context.Context, t *conversation.Turn) conversation.Result {
	if _, ok := t.Choice(); ok && !t.Event.HasMedia() {
		return conversation.Goto(FlowCredits, 0)
	}

	st, plan, ok := b.plan(t)
	if !ok {
		return conversation.Goto(FlowPlans, 0)
	}

	if err := media.RequireImage(t.Event); err != nil {
		t.Logger.Info("capture rejected", zap.Error(err))
		return conversation.Fallback(conversation.Say(receiptWrongClass))
	}

	t.Send(ctx, conversation.Say(payValidating))

	proof := t.Event.URL
	mimeType := t.Event.MimeType()
	var result credits.Verification
	stored, err := b.Media.Save(ctx, t.Event.URL, mimeType, media.CategoryReceipts, media.ObjectName("receipt_"+t.UserID(), mimeType))
	if err == nil && len(stored.Data) > 0 {
		proof = stored.URL
		result = b.Payments.VerifyImage(ctx, stored.Data, mimeType, plan.Price)
	} else {
		if err != nil {
			t.Logger.Warn("saving receipt failed", zap.Error(err))
		}
		result = b.Payments.VerifyPayment(ctx, t.Event.URL, mimeType, plan.Price)
	}
	st.Attempts++

	purchase := credits.Purchase{Key: t.Event.ID, Plan: plan, ProofURL: proof, Detail: result.Message(plan.Price)}
	if result.Valid {
		balance, err := b.Ledger.Redeem(ctx, t.UserID(), purchase)
		if err != nil {
			return failed(ctx, t, payFailed, err)
		}
		return conversation.End(conversation.Say(fmt.Sprintf(paySuccess, plan.Credits, balance)))
	}

	if err := b.Ledger.Reject(ctx, t.UserID(), purchase); err != nil {
		t.Logger.Warn("recording rejected payment failed", zap.Error(err))
	}
	t.Logger.Info("payment rejected",
		zap.String("status", string(result.Status)),
		zap.Int("attempt", st.Attempts),
	)

	if st.Attempts >= credits.MaxVerifyAttempts {
		return conversation.End(conversation.Say(payTooMany))
	}

	st.Amount = result.Amount
	st.Recipient = result.Recipient
	st.Problem = utils.FirstNonEmpty(purchase.Detail, payMismatch)
	st.Technical = result.Status == credits.StatusError
	if err := t.Store(&st); err != nil {
		return failed(ctx, t, payTechnical, err)
	}
	return conversation.Advance()
}

func (b *builder) retryPrompt(_ context.Context, t *conversation.Turn) []conversation.Message {
	st, plan, _ := b.plan(t)
	labels := []string{LabelRetry, LabelCancel}
	if st.Technical {
		return []conversation.Message{conversation.Buttons{Body: payTechnical, Labels: labels}}
	}
	return []conversation.Message{conversation.Buttons{
		Body: fmt.Sprintf(payRejected,
			credits.FormatPrice(st.Amount), utils.FirstNonEmpty(st.Recipient, "No detectado"), st.Problem,
			credits.FormatPrice(plan.Price), b.Config.PayeeName),
		Labels: labels,
	}}
}
