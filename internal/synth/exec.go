package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
	OutputPath string `json:"output_path"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// NewExecEngine wraps an external synthesis command, typically a thin script
// around a voice-cloning model. The command receives a JSON request on stdin
// and must write a WAV file at output_path before exiting zero.
func NewExecEngine(command string, sampleRate, channels int) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execEngine{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execEngine) Render(ctx context.Context, req Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:       req.Text,
		SpeakerWav: req.VoicePath,
		Language:   req.Language,
		OutputPath: req.OutputPath,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("synth command failed: %w: %s", err, stderr.String())
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return fmt.Errorf("synth command wrote no artifact: %w", err)
	}
	return nil
}
