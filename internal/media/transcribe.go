package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"google.golang.org/api/option"
)

// DefaultLanguage is the source language of every interview answer.
const DefaultLanguage = "es"

const transcribeTimeout = 3 * time.Minute

// Audio is a recorded answer. URL is public; Data holds the downloaded bytes
// when they are already in memory.
type Audio struct {
	URL      string
	Data     []byte
	MimeType string
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
	Name() string
}

// AssemblyAI transcribes through the AssemblyAI API.
type AssemblyAI struct {
	client   *aai.Client
	language string
}

func NewAssemblyAI(apiKey, language string) (*AssemblyAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("assemblyai api key is required")
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &AssemblyAI{client: aai.NewClient(apiKey), language: language}, nil
}

func (a *AssemblyAI) Name() string { return "assemblyai" }

// Transcribe uploads the bytes when present, otherwise lets AssemblyAI fetch the URL.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	params := &aai.TranscriptOptionalParams{
		LanguageCode: aai.TranscriptLanguageCode(a.language),
	}

	var (
		transcript aai.Transcript
		err        error
	)
	if len(audio.Data) > 0 {
		transcript, err = a.client.Transcripts.TranscribeFromReader(ctx, bytes.NewReader(audio.Data), params)
	} else {
		transcript, err = a.client.Transcripts.TranscribeFromURL(ctx, audio.URL, params)
	}
	if err != nil {
		return "", fmt.Errorf("assemblyai transcribe: %w", err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		return "", fmt.Errorf("assemblyai transcript failed: %s", aai.ToString(transcript.Error))
	}

	return strings.TrimSpace(aai.ToString(transcript.Text)), nil
}

// GoogleSpeech transcribes through Cloud Speech-to-Text.
type GoogleSpeech struct {
	client   *speech.Client
	language string
}

func NewGoogleSpeech(ctx context.Context, credentialsFile, language string) (*GoogleSpeech, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	if language == "" {
		language = DefaultLanguage
	}
	return &GoogleSpeech{client: client, language: language}, nil
}

func (g *GoogleSpeech) Name() string { return "google-speech" }

// Transcribe runs a long-running recognition over the in-memory bytes.
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("google speech needs audio bytes")
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               g.language,
			Encoding:                   speechEncoding(audio.MimeType, audio.URL),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data}},
	}
	if req.Config.Encoding == speechpb.RecognitionConfig_OGG_OPUS {
		// WhatsApp voice notes are 16kHz opus
		req.Config.SampleRateHertz = 16000
	}

	op, err := g.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Close releases the speech client.
func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

func speechEncoding(mimeType, name string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg") || strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "amr") || ext == ".amr":
		return speechpb.RecognitionConfig_AMR
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm") || ext == ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
