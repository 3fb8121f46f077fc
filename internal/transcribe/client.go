package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-audio/wav"
	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyTranscript is returned when transcription yields no usable speech.
// Callers treat it as "no command given" and re-prompt.
var ErrEmptyTranscript = errors.New("no speech recognized")

type Client struct {
	client *openai.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
	}
}

// Transcribe reads an audio file from disk and transcribes it.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	return c.TranscribeBytes(ctx, data)
}

// TranscribeBytes transcribes raw audio bytes. WAV input is sniffed before
// upload so corrupt recordings fail locally instead of burning an API call.
func (c *Client) TranscribeBytes(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyTranscript
	}
	if err := validateWAV(data); err != nil {
		return "", err
	}

	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(data),
	}
	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// validateWAV checks RIFF-tagged input for a decodable WAV header.
// Non-RIFF formats (e.g. mp3) are passed through untouched.
func validateWAV(data []byte) error {
	if len(data) < 4 || !bytes.HasPrefix(data, []byte("RIFF")) {
		return nil
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return fmt.Errorf("corrupt WAV audio")
	}
	return nil
}
