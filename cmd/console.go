package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/logger"
	"github.com/spigell/worky/internal/media"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptWrite  = "✍️  Escribir mensaje"
	PromptAttach = "📎 Adjuntar archivo"
	PromptExit   = "🚪 Salir"

	filePrefix = "file://"
)

var errExit = errors.New("exit requested")

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot in the terminal instead of WhatsApp",
	Run: func(cmd *cobra.Command, _ []string) {
		console(cmd)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().StringP("phone", "p", "51900000000", "the phone number the bot sees as the sender")
	consoleCmd.Flags().String("name", "Consola", "the profile name reported with every message")
}

func console(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := loadConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	logConfig(logger, config)

	term := newTerminal(os.Stdout)
	fetcher := &fileFetcher{remote: media.NewDownloader("", 0)}

	b, err := newBot(ctx, config, logger, term, fetcher)
	if err != nil {
		logger.Fatal("building the bot", zap.Error(err))
	}
	defer b.Close()

	phone := cmd.Flag("phone").Value.String()
	name := cmd.Flag("name").Value.String()
	logger.Info("console session started", zap.String("user", phone))

	for {
		ev, err := nextEvent(term)
		if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return
		}
		if err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}

		ev.ID = uuid.NewString()
		ev.From = phone
		ev.Name = name
		ev.ReceivedAt = time.Now().UTC()

		if err := b.dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Error("dispatching failed", zap.Error(err))
		}
	}
}

// nextEvent asks what to send next. Buttons and list rows of the last
// messages are offered as shortcuts.
func nextEvent(term *terminal) (conversation.Event, error) {
	options := term.options()
	items := make([]string, 0, len(options)+3)
	for _, o := range options {
		items = append(items, o.label)
	}
	items = append(items, PromptWrite, PromptAttach, PromptExit)

	prompt := promptui.Select{
		Label: "Responder",
		Items: items,
		Size:  len(items),
	}
	idx, choice, err := prompt.Run()
	if err != nil {
		return conversation.Event{}, err
	}

	switch choice {
	case PromptExit:
		return conversation.Event{}, errExit
	case PromptWrite:
		text, err := (&promptui.Prompt{Label: "Mensaje"}).Run()
		if err != nil {
			return conversation.Event{}, err
		}
		return conversation.Event{Type: conversation.EventText, Body: text}, nil
	case PromptAttach:
		path, err := (&promptui.Prompt{Label: "Ruta del archivo", Validate: fileExists}).Run()
		if err != nil {
			return conversation.Event{}, err
		}
		return fileEvent(path)
	default:
		return conversation.Event{Type: conversation.EventText, Body: options[idx].reply}, nil
	}
}

func fileExists(path string) error {
	info, err := os.Stat(strings.TrimSpace(path))
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// fileEvent builds a media event for a local file. The event type follows the
// file's MIME type the way the provider classifies attachments.
func fileEvent(path string) (conversation.Event, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return conversation.Event{}, err
	}

	mimeType := media.ContentType(abs)
	typ := conversation.EventDocument
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		typ = conversation.EventImage
	case strings.HasPrefix(mimeType, "audio/"):
		typ = conversation.EventAudio
	case strings.HasPrefix(mimeType, "video/"):
		typ = conversation.EventVideo
	}

	return conversation.Event{
		Type: typ,
		URL:  filePrefix + abs,
		File: &conversation.File{
			ID:       uuid.NewString(),
			MimeType: mimeType,
			Filename: filepath.Base(abs),
		},
	}, nil
}

// fileFetcher reads file:// URLs from disk and downloads everything else.
type fileFetcher struct {
	remote media.Fetcher
}

func (f *fileFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	path, ok := strings.CutPrefix(url, filePrefix)
	if !ok {
		return f.remote.Fetch(ctx, url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &media.DownloadError{URL: url, Err: err}
	}
	return data, nil
}

type option struct {
	label string
	reply string
}

// terminal prints bot messages and remembers the reply options they offer.
type terminal struct {
	mu    sync.Mutex
	out   io.Writer
	offer []option
	fresh bool
}

var _ conversation.Sender = (*terminal)(nil)

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) Send(_ context.Context, _ string, msg conversation.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// options belong to the latest burst of messages
	if !t.fresh {
		t.offer = nil
		t.fresh = true
	}

	switch m := msg.(type) {
	case conversation.Text:
		fmt.Fprintf(t.out, "\n🤖 %s\n", m.Body)
	case conversation.Buttons:
		fmt.Fprintf(t.out, "\n🤖 %s\n", m.Body)
		for _, label := range m.Labels {
			fmt.Fprintf(t.out, "   [%s]\n", label)
			t.offer = append(t.offer, option{label: label, reply: label})
		}
	case conversation.List:
		fmt.Fprintf(t.out, "\n🤖 *%s*\n%s\n", m.Header, m.Body)
		for _, section := range m.Sections {
			fmt.Fprintf(t.out, "   %s\n", section.Title)
			for _, row := range section.Rows {
				fmt.Fprintf(t.out, "   • %s: %s\n", row.ID, row.Title)
				if row.Description != "" {
					fmt.Fprintf(t.out, "     %s\n", row.Description)
				}
				t.offer = append(t.offer, option{label: row.Title, reply: row.ID})
			}
		}
		if m.Footer != "" {
			fmt.Fprintf(t.out, "   _%s_\n", m.Footer)
		}
	case conversation.Media:
		fmt.Fprintf(t.out, "\n🤖 %s\n   📎 %s\n", m.Caption, m.URL)
	default:
		return fmt.Errorf("unsupported message %T", msg)
	}
	return nil
}

// options returns the reply options of the latest burst and starts a new one.
func (t *terminal) options() []option {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fresh = false
	return append([]option(nil), t.offer...)
}
