package media

import (
	"fmt"
	"strings"

	"github.com/spigell/worky/internal/conversation"
)

// Reason tells the user why a capture was rejected.
type Reason string

const (
	// ReasonMissing means the event carried no media at all.
	ReasonMissing Reason = "missing"
	// ReasonWrongClass means media of the wrong kind (a document where audio was expected).
	ReasonWrongClass Reason = "wrong_class"
	// ReasonWrongFormat means the right kind of media in an unsupported format.
	ReasonWrongFormat Reason = "wrong_format"
)

// ValidationError rejects a capture before any network call.
type ValidationError struct {
	Reason   Reason
	Expected string
	Got      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("expected %s, got %s (%s)", e.Expected, e.Got, e.Reason)
}

func described(ev conversation.Event) string {
	if mt := ev.MimeType(); mt != "" {
		return mt
	}
	if ev.Type != "" {
		return string(ev.Type)
	}
	return "text"
}

// RequirePDF accepts only PDF documents.
func RequirePDF(ev conversation.Event) error {
	got := described(ev)
	switch {
	case ev.File == nil:
		return &ValidationError{Reason: ReasonMissing, Expected: "application/pdf", Got: got}
	case ev.MimeType() == "application/pdf":
		return nil
	case ev.Type == conversation.EventDocument:
		return &ValidationError{Reason: ReasonWrongFormat, Expected: "application/pdf", Got: got}
	default:
		return &ValidationError{Reason: ReasonWrongClass, Expected: "application/pdf", Got: got}
	}
}

// RequireAudioOrVideo accepts voice notes, audio files and videos.
func RequireAudioOrVideo(ev conversation.Event) error {
	got := described(ev)
	mt := ev.MimeType()
	switch {
	case ev.File == nil:
		return &ValidationError{Reason: ReasonMissing, Expected: "audio or video", Got: got}
	case strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/"):
		return nil
	case ev.Type == conversation.EventAudio || ev.Type == conversation.EventVideo:
		return &ValidationError{Reason: ReasonWrongFormat, Expected: "audio or video", Got: got}
	default:
		return &ValidationError{Reason: ReasonWrongClass, Expected: "audio or video", Got: got}
	}
}

// RequireImage accepts images only.
func RequireImage(ev conversation.Event) error {
	got := described(ev)
	switch {
	case ev.File == nil:
		return &ValidationError{Reason: ReasonMissing, Expected: "image", Got: got}
	case strings.HasPrefix(ev.MimeType(), "image/"):
		return nil
	case ev.Type == conversation.EventImage:
		return &ValidationError{Reason: ReasonWrongFormat, Expected: "image", Got: got}
	default:
		return &ValidationError{Reason: ReasonWrongClass, Expected: "image", Got: got}
	}
}
