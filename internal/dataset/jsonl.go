package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/efebarandurmaz/quench/internal/chat"
)

// ReadJSONL reads labeled examples from a JSON Lines stream. Blank lines
// are skipped; a line that fails to parse aborts the read with its line
// number so dataset corruption is visible rather than silently dropped.
func ReadJSONL(r io.Reader) ([]Example, error) {
	var out []Example
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadTriplets reads back triplets written by WriteJSONL.
func ReadTriplets(r io.Reader) ([]Triplet, error) {
	var out []Triplet
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var t Triplet
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteJSONL writes triplets as JSON Lines.
func WriteJSONL(w io.Writer, triplets []Triplet) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, t := range triplets {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// RenderedRecord is the flat-text form of a triplet: the prompt
// conversation rendered through a chat template, the responses as plain
// strings. Trainers that expect pre-templated text consume this shape.
type RenderedRecord struct {
	Prompt   string `json:"prompt"`
	Chosen   string `json:"chosen"`
	Rejected string `json:"rejected"`
}

// WriteRenderedJSONL writes triplets as flat-text JSON Lines, with each
// prompt rendered through tmpl.
func WriteRenderedJSONL(w io.Writer, triplets []Triplet, tmpl chat.Template) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, t := range triplets {
		prompt, err := tmpl.Render(t.Prompt)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		rec := RenderedRecord{
			Prompt:   prompt,
			Chosen:   t.Chosen.Content,
			Rejected: t.Rejected.Content,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return bw.Flush()
}
