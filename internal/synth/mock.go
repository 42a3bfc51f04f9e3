package synth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type mockEngine struct {
	sampleRate int
	channels   int
	duration   time.Duration
}

// NewMockEngine writes a short silence WAV per unit so the pipeline can run
// end to end without a speech model.
func NewMockEngine(sampleRate, channels int) Engine {
	return &mockEngine{sampleRate: sampleRate, channels: channels, duration: 200 * time.Millisecond}
}

func (m *mockEngine) Render(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if req.Text == "" {
		return fmt.Errorf("empty unit text")
	}

	file, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer file.Close()

	frames := int(float64(m.sampleRate) * m.duration.Seconds())
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: m.channels, SampleRate: m.sampleRate},
		Data:   make([]int, frames*m.channels),
	}

	enc := wav.NewEncoder(file, m.sampleRate, 16, m.channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
