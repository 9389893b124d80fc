package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/media"
)

func TestTerminalOffersLatestOptions(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(&out)
	ctx := context.Background()

	term.Send(ctx, "u", conversation.Say("hola"))
	term.Send(ctx, "u", conversation.Buttons{Body: "¿Qué deseas hacer?", Labels: []string{"A", "B"}})

	opts := term.options()
	if len(opts) != 2 || opts[0].reply != "A" || opts[1].reply != "B" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	term.Send(ctx, "u", conversation.List{
		Header:   "Trabajos",
		Sections: []conversation.Section{{Title: "Ofertas", Rows: []conversation.Row{{ID: "trabajo_1", Title: "Analista"}}}},
	})

	opts = term.options()
	if len(opts) != 1 {
		t.Fatalf("expected only the list row, got %+v", opts)
	}
	if opts[0].label != "Analista" || opts[0].reply != "trabajo_1" {
		t.Fatalf("list rows should reply with their id, got %+v", opts[0])
	}

	if !strings.Contains(out.String(), "[A]") || !strings.Contains(out.String(), "trabajo_1: Analista") {
		t.Fatalf("unexpected rendering:\n%s", out.String())
	}
}

func TestFileEvent(t *testing.T) {
	tests := []struct {
		name string
		want conversation.EventType
	}{
		{name: "cv.pdf", want: conversation.EventDocument},
		{name: "pago.jpg", want: conversation.EventImage},
		{name: "respuesta.ogg", want: conversation.EventAudio},
		{name: "respuesta.mp4", want: conversation.EventVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := fileEvent(filepath.Join(t.TempDir(), tt.name))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, ev.Type)
			}
			if ev.File == nil || ev.File.Filename != tt.name || ev.File.ID == "" {
				t.Fatalf("unexpected file: %+v", ev.File)
			}
			if !strings.HasPrefix(ev.URL, filePrefix) {
				t.Fatalf("expected a file url, got %q", ev.URL)
			}
		})
	}
}

type stubFetcher struct{ called string }

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	s.called = url
	return []byte("remote"), nil
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	remote := &stubFetcher{}
	f := &fileFetcher{remote: remote}

	data, err := f.Fetch(context.Background(), filePrefix+path)
	if err != nil || string(data) != "%PDF" {
		t.Fatalf("unexpected local fetch: %q, %v", data, err)
	}

	_, err = f.Fetch(context.Background(), filePrefix+path+".missing")
	var dlErr *media.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected a download error, got %v", err)
	}

	if _, err := f.Fetch(context.Background(), "https://example.com/a.pdf"); err != nil || remote.called != "https://example.com/a.pdf" {
		t.Fatalf("remote urls should be delegated, got %q, %v", remote.called, err)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	config := &Config{
		WhatsApp: &WhatsAppConfig{Token: "tok", AppSecret: "sec"},
		AI:       &AIConfig{Gemini: &GeminiConfig{APIKey: "key", Model: "m"}},
		Media:    &MediaConfig{FTP: &FTPConfig{Password: "pw"}},
	}

	r := redacted(config)
	if r.WhatsApp.Token != "***" || r.WhatsApp.AppSecret != "***" || r.AI.Gemini.APIKey != "***" || r.Media.FTP.Password != "***" {
		t.Fatalf("secrets leaked: %+v", r)
	}
	if r.AI.Gemini.Model != "m" {
		t.Fatalf("non secret values must stay, got %q", r.AI.Gemini.Model)
	}
	if config.WhatsApp.Token != "tok" || config.AI.Gemini.APIKey != "key" {
		t.Fatal("the original config must not be modified")
	}
}

func TestEnvName(t *testing.T) {
	if got := envName("whatsapp.phone-number-id"); got != "WORKY_WHATSAPP_PHONE_NUMBER_ID" {
		t.Fatalf("unexpected env name %q", got)
	}
}
