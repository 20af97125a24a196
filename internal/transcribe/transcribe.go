// Package transcribe sends audio to an OpenAI-compatible speech-to-text
// endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/segment"
)

const (
	// DefaultMaxBytes is the provider's upload limit.
	DefaultMaxBytes int64 = 25 * 1024 * 1024
	// DefaultTimeout bounds the whole remote call.
	DefaultTimeout = 5 * time.Minute
)

// Config holds the provider settings for a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Language   string
	MaxBytes   int64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Result is a finished transcription.
type Result struct {
	Text      string
	WordCount int
}

// Client calls the audio transcriptions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

// NewClient creates a Client, filling unset limits with their defaults.
func NewClient(cfg Config, log *logrus.Entry) *Client {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		// The per-call context carries the deadline.
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type transcriptionBody struct {
	Text string `json:"text"`
}

// Transcribe uploads the file at audioPath and returns the trimmed transcript.
// Files over the size limit fail with PayloadTooLarge before any request is
// made; a call running past the timeout fails with Timeout.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return Result{}, apperr.E(apperr.Transcription, "stat audio file", err)
	}
	if info.Size() > c.cfg.MaxBytes {
		return Result{}, apperr.New(apperr.PayloadTooLarge,
			fmt.Sprintf("audio file is %d bytes, limit is %d", info.Size(), c.cfg.MaxBytes))
	}
	if c.cfg.APIKey == "" {
		return Result{}, apperr.New(apperr.Transcription, "transcription API key is not configured")
	}

	body, contentType, err := c.encode(audioPath)
	if err != nil {
		return Result{}, apperr.E(apperr.Transcription, "build transcription request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return Result{}, apperr.E(apperr.Transcription, "build transcription request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	c.log.WithFields(logrus.Fields{"bytes": info.Size(), "model": c.cfg.Model}).Info("Starting transcription")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, c.classifyTransportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, c.classifyTransportError(ctx, callCtx, err)
	}
	if resp.StatusCode >= 300 {
		return Result{}, classifyProviderError(resp.StatusCode, raw)
	}

	var parsed transcriptionBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, apperr.E(apperr.Transcription, "decode transcription response", err)
	}

	text := strings.TrimSpace(parsed.Text)
	result := Result{Text: text, WordCount: segment.CountWords(text)}
	c.log.WithFields(logrus.Fields{
		"word_count": result.WordCount,
		"took_ms":    time.Since(start).Milliseconds(),
	}).Info("Transcription finished")
	return result, nil
}

func (c *Client) encode(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio.mp3"`)
	h.Set("Content-Type", "audio/mpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", c.cfg.Model); err != nil {
		return nil, "", err
	}
	if c.cfg.Language != "" {
		if err := w.WriteField("language", c.cfg.Language); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// classifyTransportError separates our own deadline from caller cancellation
// and plain network failures.
func (c *Client) classifyTransportError(parent, call context.Context, err error) error {
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		return apperr.E(apperr.Timeout, fmt.Sprintf("transcription timed out after %s", c.cfg.Timeout), err)
	}
	return apperr.E(apperr.Transcription, "transcription request failed", err)
}

func classifyProviderError(status int, raw []byte) error {
	var eb errorBody
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	if eb.Error.Code == "insufficient_quota" || eb.Error.Type == "insufficient_quota" {
		return apperr.New(apperr.QuotaExceeded, "transcription quota exceeded: "+msg)
	}
	if status == http.StatusRequestEntityTooLarge {
		return apperr.New(apperr.PayloadTooLarge, "provider rejected audio size: "+msg)
	}
	return apperr.New(apperr.Transcription, fmt.Sprintf("transcription http %d: %s", status, msg))
}
