package conversation

import (
	"strings"
	"time"
)

// EventType tags the payload of an inbound event.
type EventType string

const (
	EventText     EventType = "text"
	EventAudio    EventType = "audio"
	EventVideo    EventType = "video"
	EventDocument EventType = "document"
	EventImage    EventType = "image"
)

// File describes provider-hosted media attached to an event.
type File struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
}

// Event is a single inbound message from a user.
type Event struct {
	// ID is the provider message id. Redeliveries carry the same id.
	ID   string
	From string
	// Name is the profile name reported by the provider, if any.
	Name string
	Body string
	Type EventType
	// URL is a temporary, provider-authenticated media URL.
	URL        string
	File       *File
	ReceivedAt time.Time
}

// Text returns the trimmed body.
func (e Event) Text() string {
	return strings.TrimSpace(e.Body)
}

// MimeType returns the lower-cased media type, or an empty string for text events.
func (e Event) MimeType() string {
	if e.File == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(e.File.MimeType))
}

// HasMedia reports whether the event references downloadable media.
func (e Event) HasMedia() bool {
	return e.File != nil && e.URL != ""
}
