//go:build !js && !wasm
// +build !js,!wasm

// Package audio reads format details and duration from uploaded beats.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

var (
	ErrInvalidWAV        = errors.New("not a valid WAV file")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoAudioStream     = errors.New("no audio stream found")
)

// Info describes an uploaded audio file.
type Info struct {
	Format      string
	DurationSec float64 // rounded to 2 places
	SampleRate  int
	Channels    int
	BitDepth    int
	Title       string
	Artist      string
}

// Probe inspects data using its file extension to pick a decoder. WAV
// headers are parsed in-process; everything else goes through ffprobe.
func Probe(ctx context.Context, filename string, data []byte) (*Info, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return ProbeWAV(bytes.NewReader(data))
	case ".mp3":
		return ProbeFFmpeg(ctx, bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// ProbeWAV reads the RIFF header and data chunk size.
func ProbeWAV(r io.ReadSeeker) (*Info, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating wav data chunk: %w", err)
	}

	var seconds float64
	if frameBytes := int(d.NumChans) * int(d.BitDepth) / 8; frameBytes > 0 && d.SampleRate > 0 {
		seconds = float64(d.PCMSize) / float64(frameBytes) / float64(d.SampleRate)
	} else {
		dur, err := d.Duration()
		if err != nil {
			return nil, fmt.Errorf("reading wav duration: %w", err)
		}
		seconds = dur.Seconds()
	}

	return &Info{
		Format:      "wav",
		DurationSec: RoundDuration(seconds),
		SampleRate:  int(d.SampleRate),
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
	}, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// ProbeFFmpeg pipes r into ffprobe. Without a deadline on ctx the probe is
// bounded to 5 seconds.
func ProbeFFmpeg(ctx context.Context, r io.Reader) (*Info, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", "pipe:0",
	)
	cmd.Stdin = r

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFFprobe(out)
}

func parseFFprobe(out []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	stream := probe.firstAudioStream()
	if stream == nil {
		return nil, ErrNoAudioStream
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	info := &Info{
		Format:      probe.Format.Format,
		DurationSec: RoundDuration(duration),
		SampleRate:  sampleRate,
		Channels:    stream.Channels,
		BitDepth:    stream.BitsPerSample,
	}
	if probe.Format.Tags != nil {
		info.Title = probe.Format.Tags["title"]
		info.Artist = probe.Format.Tags["artist"]
	}
	return info, nil
}

// RoundDuration rounds seconds to 2 decimal places.
func RoundDuration(sec float64) float64 {
	return math.Round(sec*100) / 100
}
