package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandoe/quizmaker/internal/apperr"
)

func writeAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func newTestClient(srvURL string, cfg Config) *Client {
	logger, _ := logtest.NewNullLogger()
	cfg.BaseURL = srvURL
	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	return NewClient(cfg, logger.WithField("test", true))
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "audio.mp3", hdr.Filename)
			assert.Equal(t, "audio/mpeg", hdr.Header.Get("Content-Type"))
			data, _ := io.ReadAll(f)
			assert.Len(t, data, 128)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  hello there\n general kenobi  "}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, Config{Language: "en"})
	res, err := c.Transcribe(context.Background(), writeAudio(t, 128))
	require.NoError(t, err)
	assert.Equal(t, "hello there\n general kenobi", res.Text)
	assert.Equal(t, 4, res.WordCount)
}

func TestTranscribeRejectsLargeFileBeforeNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, Config{MaxBytes: 100})
	_, err := c.Transcribe(context.Background(), writeAudio(t, 101))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PayloadTooLarge))
	assert.True(t, apperr.Is(err, apperr.Transcription))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestTranscribeQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, Config{}).Transcribe(context.Background(), writeAudio(t, 10))
	require.Error(t, err)
	assert.Equal(t, apperr.QuotaExceeded, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "You exceeded your current quota")
}

func TestTranscribeGenericProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid file format","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, Config{}).Transcribe(context.Background(), writeAudio(t, 10))
	require.Error(t, err)
	assert.Equal(t, apperr.Transcription, apperr.KindOf(err))
	assert.False(t, apperr.Is(err, apperr.QuotaExceeded))
	assert.Equal(t, "transcription http 400: Invalid file format", err.Error())
}

func TestTranscribeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL, Config{Timeout: 50 * time.Millisecond})
	_, err := c.Transcribe(context.Background(), writeAudio(t, 10))
	require.Error(t, err)
	assert.Equal(t, apperr.Timeout, apperr.KindOf(err))
}

func TestTranscribeMissingFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", Config{})
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	require.Error(t, err)
	assert.Equal(t, apperr.Transcription, apperr.KindOf(err))
}
