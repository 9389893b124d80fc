package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/worky/internal/conversation"
)

// VerifyChallenge answers the subscription handshake. It returns the challenge
// to echo and whether the request carried the expected token.
func VerifyChallenge(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" || token != expected {
		return "", false
	}
	return challenge, true
}

// ValidSignature checks the X-Hub-Signature-256 header against the app secret.
// An empty secret disables the check.
func ValidSignature(body []byte, header, secret string) bool {
	if secret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Parse extracts inbound user messages from a webhook notification. Status
// updates and unsupported message types are skipped.
func Parse(body []byte) ([]conversation.Event, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	var events []conversation.Event
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				ev, ok := m.event()
				if !ok {
					continue
				}
				ev.Name = names[m.From]
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

type notification struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []inbound `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inbound struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Image    *mediaObject `json:"image"`
	Audio    *mediaObject `json:"audio"`
	Video    *mediaObject `json:"video"`
	Document *mediaObject `json:"document"`
}

type mediaObject struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

func (m inbound) event() (conversation.Event, bool) {
	ev := conversation.Event{
		ID:         m.ID,
		From:       m.From,
		ReceivedAt: parseTimestamp(m.Timestamp),
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return ev, false
		}
		ev.Type = conversation.EventText
		ev.Body = m.Text.Body
	case "button":
		if m.Button == nil {
			return ev, false
		}
		ev.Type = conversation.EventText
		ev.Body = m.Button.Text
	case "interactive":
		if m.Interactive == nil {
			return ev, false
		}
		ev.Type = conversation.EventText
		switch {
		case m.Interactive.ButtonReply != nil:
			ev.Body = m.Interactive.ButtonReply.Title
		case m.Interactive.ListReply != nil:
			// list selections are resolved by row id
			ev.Body = m.Interactive.ListReply.ID
		default:
			return ev, false
		}
	case "image":
		return withMedia(ev, conversation.EventImage, m.Image)
	case "audio":
		return withMedia(ev, conversation.EventAudio, m.Audio)
	case "video":
		return withMedia(ev, conversation.EventVideo, m.Video)
	case "document":
		return withMedia(ev, conversation.EventDocument, m.Document)
	default:
		return ev, false
	}
	return ev, true
}

func withMedia(ev conversation.Event, typ conversation.EventType, obj *mediaObject) (conversation.Event, bool) {
	if obj == nil || obj.ID == "" {
		return ev, false
	}
	ev.Type = typ
	ev.Body = obj.Caption
	ev.File = &conversation.File{ID: obj.ID, MimeType: obj.MimeType, Filename: obj.Filename}
	return ev, true
}

func parseTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
