package synth

import "context"

// Request describes one unit synthesis call.
type Request struct {
	Text       string
	VoicePath  string
	Language   string
	OutputPath string
}

// Engine is the contract for rendering one unit of text to an audio file.
type Engine interface {
	Render(ctx context.Context, req Request) error
}
