package analysis

import (
	"errors"
	"fmt"
)

// Category classifies a failed call to the analysis service.
type Category string

const (
	CategoryTimeout   Category = "timeout"
	CategoryNotFound  Category = "not_found"
	CategoryUpstream  Category = "upstream"
	CategoryRejected  Category = "rejected"
	CategoryNetwork   Category = "network"
	CategoryMalformed Category = "malformed"
)

// ErrNotPersisted marks an analysis that completed but could not be stored.
var ErrNotPersisted = errors.New("analysis completed but not saved")

// Error is returned by every Client call that fails.
type Error struct {
	Category Category
	Op       string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Category {
	case CategoryTimeout:
		return "⏳ El análisis tardó demasiado tiempo. El servicio no respondió en 3 minutos. Por favor, inténtalo más tarde."
	case CategoryNotFound:
		return "📄 No pudimos leer tu archivo. No se pudo descargar el PDF desde la URL proporcionada."
	case CategoryUpstream:
		return "⚠️ Error del servidor al procesar tu CV. Nuestro servidor está experimentando dificultades, inténtalo más tarde."
	case CategoryMalformed:
		return "⚠️ Recibimos una respuesta inesperada del servicio de análisis. Por favor, inténtalo más tarde."
	default:
		return "⚠️ Ocurrió un problema al procesar tu solicitud. Por favor, inténtalo más tarde."
	}
}

// UserMessage returns the user-facing text for any error from this package.
func UserMessage(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.UserMessage()
	}
	return (&Error{}).UserMessage()
}

// IsCategory reports whether err is an *Error of the given category.
func IsCategory(err error, c Category) bool {
	var aerr *Error
	return errors.As(err, &aerr) && aerr.Category == c
}
