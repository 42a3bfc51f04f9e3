// Package segment splits long-form text into bounded units sized for a
// single synthesis call. Sentences are packed greedily under a size budget;
// a sentence that cannot fit on its own is split again at clause punctuation.
package segment

import (
	"fmt"
	"strings"
	"unicode"
)

// Unit is one bounded span of source text, ordered by Index.
type Unit struct {
	Index int
	Text  string
	Size  int
}

// Measurer reports the size of a candidate unit under the configured budget.
type Measurer interface {
	Measure(text string) (int, error)
}

// MeasurerFunc adapts a function to the Measurer interface.
type MeasurerFunc func(text string) (int, error)

func (f MeasurerFunc) Measure(text string) (int, error) { return f(text) }

// Characters measures by rune count.
type Characters struct{}

func (Characters) Measure(text string) (int, error) {
	return len([]rune(text)), nil
}

// Split packs the sentences of text into units whose measured size stays
// within maxSize. A clause that exceeds maxSize by itself is emitted as an
// oversized unit rather than decomposed further. Empty or whitespace-only
// input yields no units.
func Split(text string, maxSize int, measure Measurer) ([]Unit, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if measure == nil {
		measure = Characters{}
	}

	var units []Unit
	current := ""

	flush := func() error {
		trimmed := strings.TrimSpace(current)
		current = ""
		if trimmed == "" {
			return nil
		}
		size, err := measure.Measure(trimmed)
		if err != nil {
			return fmt.Errorf("measure unit: %w", err)
		}
		units = append(units, Unit{Index: len(units), Text: trimmed, Size: size})
		return nil
	}

	// tryAppend extends the accumulator with piece when the result stays
	// within budget.
	tryAppend := func(piece string) (bool, error) {
		candidate := piece
		if current != "" {
			candidate = current + " " + piece
		}
		size, err := measure.Measure(candidate)
		if err != nil {
			return false, fmt.Errorf("measure candidate: %w", err)
		}
		if size > maxSize {
			return false, nil
		}
		current = candidate
		return true, nil
	}

	for _, sentence := range splitSentences(text) {
		ok, err := tryAppend(sentence)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}

		own, err := measure.Measure(sentence)
		if err != nil {
			return nil, fmt.Errorf("measure sentence: %w", err)
		}
		if own > maxSize {
			// Sentence cannot fit whole in any unit; fall back to clauses.
			for _, clause := range splitClauses(sentence) {
				ok, err := tryAppend(clause)
				if err != nil {
					return nil, err
				}
				if ok {
					continue
				}
				if err := flush(); err != nil {
					return nil, err
				}
				// An indivisible oversized clause is accepted as-is.
				current = clause
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		current = sentence
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return units, nil
}

// splitSentences breaks text at whitespace following terminal punctuation,
// keeping the punctuation attached to the preceding sentence. Whitespace-only
// fragments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	emit := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isTerminal(r) && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			emit()
		}
	}
	emit()
	return sentences
}

// splitClauses breaks a sentence at clause punctuation, keeping the
// delimiter attached to the preceding clause.
func splitClauses(sentence string) []string {
	var clauses []string
	var b strings.Builder

	emit := func() {
		if c := strings.TrimSpace(b.String()); c != "" {
			clauses = append(clauses, c)
		}
		b.Reset()
	}

	for _, r := range sentence {
		b.WriteRune(r)
		if r == ',' || r == ';' || r == ':' {
			emit()
		}
	}
	emit()
	return clauses
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
