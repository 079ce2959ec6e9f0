// Package extract derives plain text from uploaded documents. Real OCR
// engines are external collaborators and plug in behind TextExtractor.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor derives plain text from raw document bytes.
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// PlainTextExtractor handles text-bearing formats directly. Binary formats
// it cannot decode are rejected rather than guessed at.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) ExtractText(_ context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("document %q is empty", filename)
	}
	if !utf8.Valid(data) || looksBinary(data) {
		return "", fmt.Errorf("document %q is not plain text; no extraction engine configured for it", filename)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("document %q contains no text", filename)
	}
	return text, nil
}

// looksBinary flags content with NUL bytes or a high share of control
// characters in the leading window.
func looksBinary(data []byte) bool {
	if bytes.IndexByte(data, 0x00) >= 0 {
		return true
	}
	window := data
	if len(window) > 512 {
		window = window[:512]
	}
	control := 0
	for _, b := range window {
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			control++
		}
	}
	return control*10 > len(window)
}
