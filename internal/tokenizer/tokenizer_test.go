package tokenizer

import (
	"context"
	"testing"
)

func TestMockCounterCountsWords(t *testing.T) {
	counter := NewMockCounter()
	n, err := counter.Count(context.Background(), "one two  three\nfour")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 tokens, got %d", n)
	}
}

func TestMockCounterEmptyText(t *testing.T) {
	counter := NewMockCounter()
	n, err := counter.Count(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 tokens, got %d", n)
	}
}

func TestNewExecCounterRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecCounter(""); err == nil {
		t.Fatal("expected error for empty command")
	}
}
