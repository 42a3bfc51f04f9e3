// Package assemble concatenates per-unit audio artifacts into one track,
// inserting a fixed silence gap between artifacts for natural pacing.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/narratelabs/narrated/internal/config"
)

// ErrNothingAssembled indicates that no artifact could be appended, either
// because none were offered or every decode failed.
var ErrNothingAssembled = errors.New("no artifacts assembled")

// Track describes the assembled output.
type Track struct {
	Path       string
	SampleRate int
	Channels   int
	Frames     int
	Appended   int
	Skipped    int
}

// Duration is the playing time of the assembled track.
func (t Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(t.Frames) / float64(t.SampleRate) * float64(time.Second))
}

type Assembler struct {
	cfg    config.AssembleConfig
	logger *slog.Logger
}

func New(cfg config.AssembleConfig, log *slog.Logger) *Assembler {
	return &Assembler{cfg: cfg, logger: log.With(slog.String("component", "assembler"))}
}

// Assemble decodes each artifact in order and appends it to the output
// buffer, separated by the configured silence gap. An artifact that fails to
// decode is logged and skipped. The final WAV is written to a temporary name
// and renamed into place so a failed encode never leaves a partial file at
// outputPath.
func (a *Assembler) Assemble(ctx context.Context, artifacts []string, outputPath string) (Track, error) {
	if len(artifacts) == 0 {
		return Track{}, ErrNothingAssembled
	}

	var combined []int
	var format *audio.Format
	appended, skipped := 0, 0

	for _, path := range artifacts {
		if err := ctx.Err(); err != nil {
			return Track{}, err
		}

		buf, err := decodeWav(path)
		if err != nil {
			a.logger.Warn("skipping unreadable artifact",
				slog.String("artifact", path),
				slog.String("error", err.Error()))
			skipped++
			continue
		}
		if format == nil {
			format = buf.Format
		} else if buf.Format.SampleRate != format.SampleRate || buf.Format.NumChannels != format.NumChannels {
			a.logger.Warn("skipping artifact with mismatched format",
				slog.String("artifact", path),
				slog.Int("sample_rate", buf.Format.SampleRate),
				slog.Int("channels", buf.Format.NumChannels))
			skipped++
			continue
		}

		if appended > 0 {
			combined = append(combined, a.gapSamples(format)...)
		}
		combined = append(combined, buf.Data...)
		appended++
	}

	if appended == 0 {
		return Track{}, ErrNothingAssembled
	}

	if err := encodeWav(outputPath, format, combined); err != nil {
		return Track{}, fmt.Errorf("encode assembled track: %w", err)
	}

	return Track{
		Path:       outputPath,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		Frames:     len(combined) / format.NumChannels,
		Appended:   appended,
		Skipped:    skipped,
	}, nil
}

func (a *Assembler) gapSamples(format *audio.Format) []int {
	frames := format.SampleRate * a.cfg.GapDurationMS / 1000
	return make([]int, frames*format.NumChannels)
}

func decodeWav(path string) (*audio.IntBuffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("wav file carries no format")
	}
	return buf, nil
}

func encodeWav(path string, format *audio.Format, samples []int) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	enc := wav.NewEncoder(file, format.SampleRate, 16, format.NumChannels, 1)
	buffer := &audio.IntBuffer{Format: format, Data: samples}
	if err := enc.Write(buffer); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("close wav encoder: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
