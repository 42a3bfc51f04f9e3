package tokenizer

import "context"

// Counter measures text length in model tokens. Token output is only ever
// counted, never used to reconstruct text.
type Counter interface {
	Count(ctx context.Context, text string) (int, error)
}
