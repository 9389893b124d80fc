package flows

import (
	"errors"

	"github.com/spigell/worky/internal/media"
)

const (
	pdfWrongFormat = "⚠️ El archivo que enviaste no es compatible. Para poder analizar tu CV correctamente, necesito que lo envíes en formato PDF (.pdf).\n\n" +
		"Por favor, convierte tu documento a PDF y vuelve a enviarlo. Si necesitas ayuda para convertir tu archivo a PDF, puedes usar herramientas gratuitas en línea."
	pdfWrongClass = "📎 Necesito tu CV como *documento PDF*. Adjúntalo desde la opción de documentos y vuelve a enviarlo."

	answerWrongFormat = "⚠️ No puedo procesar ese formato de audio o video. Graba tu respuesta directamente en WhatsApp e inténtalo de nuevo."
	answerWrongClass  = "🎙️ *Responde con un mensaje de audio o video.*\n\nAsí la simulación es más realista y puedo analizar tu respuesta."

	receiptWrongClass = "🖼️ Envía una *captura de pantalla* (imagen) de tu comprobante de pago."

	downloadFailed = "⚠️ No pude leer tu archivo. Por favor, envíalo de nuevo."
)

// rejection picks the message for a capture that failed validation. Wrong
// formats and wrong media classes get different explanations.
func rejection(err error, wrongFormat, wrongClass string) string {
	var verr *media.ValidationError
	if errors.As(err, &verr) && verr.Reason == media.ReasonWrongFormat && wrongFormat != "" {
		return wrongFormat
	}
	return wrongClass
}

// unreadable reports whether saving media failed because the provider file
// could not be fetched.
func unreadable(err error) bool {
	var derr *media.DownloadError
	return errors.As(err, &derr)
}
