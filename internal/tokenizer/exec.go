package tokenizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execCounter struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text string `json:"text"`
}

type execResponse struct {
	Tokens int `json:"tokens"`
}

// NewExecCounter wraps an external tokenizer command. The command receives
// {"text": ...} on stdin and must print {"tokens": N} on stdout.
func NewExecCounter(command string) (Counter, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tokenizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tokenizer command empty")
	}
	return &execCounter{cmd: args}, nil
}

func (c *execCounter) Count(ctx context.Context, text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: text})
	if err != nil {
		return 0, err
	}

	base := c.cmd[0]
	args := append([]string{}, c.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("tokenizer command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return 0, fmt.Errorf("decode tokenizer response: %w", err)
	}
	if resp.Tokens < 0 {
		return 0, fmt.Errorf("tokenizer returned negative count %d", resp.Tokens)
	}
	return resp.Tokens, nil
}
