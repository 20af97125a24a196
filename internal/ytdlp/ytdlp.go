// Package ytdlp wraps the yt-dlp command line tool to pull the audio track
// of a YouTube video.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
)

// AudioFileName is the name of the extracted audio inside the work dir.
const AudioFileName = "audio.mp3"

var supportedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ValidateURL accepts absolute http(s) URLs on a YouTube host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.New(apperr.InvalidInput, "Invalid URL format")
	}
	if !supportedHosts[strings.ToLower(u.Hostname())] {
		return apperr.New(apperr.InvalidInput, "Only YouTube URLs are supported")
	}
	return nil
}

// Metadata is what yt-dlp reports about a video without downloading it.
type Metadata struct {
	Title           string
	DurationSeconds *int
}

// Audio is a downloaded audio track.
type Audio struct {
	Path     string
	Metadata Metadata
}

// Config configures a Downloader.
type Config struct {
	BinaryPath     string
	FFmpegLocation string
	Timeout        time.Duration
}

// Downloader runs yt-dlp.
type Downloader struct {
	cfg Config
	log *logrus.Entry
}

// NewDownloader creates a Downloader. An empty BinaryPath means "yt-dlp" on
// PATH; a zero Timeout leaves the subprocess unbounded.
func NewDownloader(cfg Config, log *logrus.Entry) *Downloader {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "yt-dlp"
	}
	return &Downloader{cfg: cfg, log: log}
}

// FetchAudio extracts the audio of rawURL into dir as audio.mp3. Title and
// duration are looked up first and are best-effort; a failed lookup leaves
// them empty.
func (d *Downloader) FetchAudio(ctx context.Context, rawURL, dir string) (Audio, error) {
	if err := ValidateURL(rawURL); err != nil {
		return Audio{}, err
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	meta, err := d.Metadata(ctx, rawURL)
	if err != nil {
		d.log.WithError(err).Warn("Could not read video metadata, continuing without title")
	}

	args := []string{"-x", "--audio-format", "mp3", "--audio-quality", "0"}
	if d.cfg.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", d.cfg.FFmpegLocation)
	}
	args = append(args, "--no-playlist", "-o", filepath.Join(dir, "audio.%(ext)s"), rawURL)

	if _, err := d.run(ctx, args...); err != nil {
		return Audio{}, err
	}

	out := filepath.Join(dir, AudioFileName)
	info, err := os.Stat(out)
	if err != nil {
		return Audio{}, apperr.E(apperr.Download, "yt-dlp produced no audio file", err)
	}
	if info.Size() == 0 {
		return Audio{}, apperr.New(apperr.Download, "yt-dlp produced an empty audio file")
	}

	d.log.WithFields(logrus.Fields{"bytes": info.Size(), "title": meta.Title}).Info("Audio downloaded")
	return Audio{Path: out, Metadata: meta}, nil
}

// Metadata asks yt-dlp for the title and duration without downloading.
func (d *Downloader) Metadata(ctx context.Context, rawURL string) (Metadata, error) {
	out, err := d.run(ctx, "--print", "title", "--print", "duration", "--no-download", "--no-playlist", rawURL)
	if err != nil {
		return Metadata{}, err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")

	var meta Metadata
	if len(lines) > 0 {
		meta.Title = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64); err == nil {
			n := int(secs + 0.5)
			meta.DurationSeconds = &n
		}
	}
	return meta, nil
}

func (d *Downloader) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.E(apperr.Download, fmt.Sprintf("yt-dlp timed out after %s", d.cfg.Timeout), err)
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", apperr.E(apperr.Download, "yt-dlp failed", errors.New(diag))
	}
	return out.String(), nil
}
