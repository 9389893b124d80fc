// Package whatsapp is a minimal WhatsApp Cloud API client: outbound messages,
// media URL resolution and webhook payload parsing.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	defaultVersion = "v21.0"

	maxButtons     = 3
	maxButtonTitle = 20
	maxRowTitle    = 24
	maxRowDesc     = 72
	maxListButton  = 20
)

// Config holds the Cloud API credentials.
type Config struct {
	BaseURL       string        `mapstructure:"base-url"`
	Version       string        `mapstructure:"version"`
	PhoneNumberID string        `mapstructure:"phone-number-id"`
	Token         string        `mapstructure:"-"`
	VerifyToken   string        `mapstructure:"-"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Client sends messages through the Cloud API. It implements conversation.Sender.
type Client struct {
	logger        *zap.Logger
	HTTPClient    *http.Client
	BaseURL       string
	Version       string
	PhoneNumberID string
	token         string
}

var _ conversation.Sender = (*Client)(nil)

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("whatsapp phone number id is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("whatsapp token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		logger:        logger,
		HTTPClient:    &http.Client{Timeout: timeout},
		BaseURL:       strings.TrimRight(utils.FirstNonEmpty(cfg.BaseURL, defaultBaseURL), "/"),
		Version:       utils.FirstNonEmpty(cfg.Version, defaultVersion),
		PhoneNumberID: cfg.PhoneNumberID,
		token:         cfg.Token,
	}, nil
}

// Send delivers one message to a WhatsApp user.
func (c *Client) Send(ctx context.Context, to string, msg conversation.Message) error {
	payload, err := outbound(to, msg)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.Version, c.PhoneNumberID)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp sendResponse
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("send %s message: %w", payload.Type, err)
	}

	c.logger.Debug("message sent",
		zap.String("user", to),
		zap.String("type", payload.Type),
		zap.Int("message_ids", len(resp.Messages)),
	)
	return nil
}

// MediaURL resolves a media id to its temporary download URL and MIME type.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, string, error) {
	if mediaID == "" {
		return "", "", errors.New("media id is required")
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, c.Version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}

	var resp mediaResponse
	if err := c.do(req, &resp); err != nil {
		return "", "", fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	if resp.URL == "" {
		return "", "", fmt.Errorf("resolve media %s: empty url", mediaID)
	}
	return resp.URL, resp.MimeType, nil
}

// Resolve fills the media URL of an inbound event that references a file.
func (c *Client) Resolve(ctx context.Context, ev *conversation.Event) error {
	if ev.File == nil || ev.URL != "" {
		return nil
	}
	url, mimeType, err := c.MediaURL(ctx, ev.File.ID)
	if err != nil {
		return err
	}
	ev.URL = url
	if ev.File.MimeType == "" {
		ev.File.MimeType = mimeType
	}
	return nil
}

func (c *Client) do(req *http.Request, target any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return &APIError{Status: resp.StatusCode, Code: apiErr.Error.Code, Message: apiErr.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Message: utils.TruncateForLog(string(data), 200)}
	}

	if target == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api status %d (code %d): %s", e.Status, e.Code, e.Message)
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// outbound builds the Cloud API payload for msg.
func outbound(to string, msg conversation.Message) (*messagePayload, error) {
	p := &messagePayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}

	switch m := msg.(type) {
	case conversation.Text:
		p.Type = "text"
		p.Text = &textPayload{Body: m.Body}
	case conversation.Buttons:
		if len(m.Labels) == 0 {
			p.Type = "text"
			p.Text = &textPayload{Body: m.Body}
			return p, nil
		}
		if len(m.Labels) > maxButtons {
			return nil, fmt.Errorf("at most %d buttons are supported, got %d", maxButtons, len(m.Labels))
		}
		action := &actionPayload{}
		for i, label := range m.Labels {
			action.Buttons = append(action.Buttons, buttonPayload{
				Type:  "reply",
				Reply: replyPayload{ID: fmt.Sprintf("btn_%d", i+1), Title: utils.Truncate(label, maxButtonTitle)},
			})
		}
		p.Type = "interactive"
		p.Interactive = &interactivePayload{Type: "button", Body: &textBody{Text: m.Body}, Action: action}
	case conversation.List:
		action := &actionPayload{Button: utils.Truncate(utils.FirstNonEmpty(m.Button, "Ver opciones"), maxListButton)}
		for _, s := range m.Sections {
			section := sectionPayload{Title: utils.Truncate(s.Title, maxRowTitle)}
			for _, r := range s.Rows {
				section.Rows = append(section.Rows, rowPayload{
					ID:          r.ID,
					Title:       utils.Truncate(r.Title, maxRowTitle),
					Description: utils.Truncate(r.Description, maxRowDesc),
				})
			}
			action.Sections = append(action.Sections, section)
		}
		ip := &interactivePayload{Type: "list", Body: &textBody{Text: m.Body}, Action: action}
		if m.Header != "" {
			ip.Header = &headerPayload{Type: "text", Text: m.Header}
		}
		if m.Footer != "" {
			ip.Footer = &textBody{Text: m.Footer}
		}
		p.Type = "interactive"
		p.Interactive = ip
	case conversation.Media:
		if m.URL == "" {
			return nil, errors.New("media url is required")
		}
		link := &linkPayload{Link: m.URL, Caption: m.Caption}
		kind := mediaKind(m.URL)
		switch kind {
		case "image":
			p.Image = link
		case "audio":
			// audio messages do not carry captions
			p.Audio = &linkPayload{Link: m.URL}
		case "video":
			p.Video = link
		default:
			link.Filename = path.Base(strings.SplitN(m.URL, "?", 2)[0])
			p.Document = link
		}
		p.Type = kind
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
	return p, nil
}

func mediaKind(url string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return "image"
	case ".mp3", ".ogg", ".opus", ".m4a", ".aac", ".amr":
		return "audio"
	case ".mp4", ".3gp":
		return "video"
	default:
		return "document"
	}
}

type messagePayload struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
	Image            *linkPayload        `json:"image,omitempty"`
	Audio            *linkPayload        `json:"audio,omitempty"`
	Video            *linkPayload        `json:"video,omitempty"`
	Document         *linkPayload        `json:"document,omitempty"`
}

type textPayload struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type textBody struct {
	Text string `json:"text"`
}

type headerPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactivePayload struct {
	Type   string         `json:"type"`
	Header *headerPayload `json:"header,omitempty"`
	Body   *textBody      `json:"body,omitempty"`
	Footer *textBody      `json:"footer,omitempty"`
	Action *actionPayload `json:"action"`
}

type actionPayload struct {
	Button   string           `json:"button,omitempty"`
	Buttons  []buttonPayload  `json:"buttons,omitempty"`
	Sections []sectionPayload `json:"sections,omitempty"`
}

type buttonPayload struct {
	Type  string       `json:"type"`
	Reply replyPayload `json:"reply"`
}

type replyPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type sectionPayload struct {
	Title string       `json:"title,omitempty"`
	Rows  []rowPayload `json:"rows"`
}

type rowPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type linkPayload struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}
