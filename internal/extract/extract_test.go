package extract

import (
	"context"
	"testing"
)

func TestPlainTextExtractor(t *testing.T) {
	e := NewPlainTextExtractor()
	ctx := context.Background()

	t.Run("plain text passes through trimmed", func(t *testing.T) {
		got, err := e.ExtractText(ctx, "doc.txt", []byte("  Invoice Number INV-42  \n"))
		if err != nil {
			t.Fatalf("ExtractText: %v", err)
		}
		if got != "Invoice Number INV-42" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("utf8 with newlines", func(t *testing.T) {
		got, err := e.ExtractText(ctx, "doc.txt", []byte("Rechnung Nr. 42\nBetrag: 12,50 €\n"))
		if err != nil {
			t.Fatalf("ExtractText: %v", err)
		}
		if got == "" {
			t.Error("expected text")
		}
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty document", nil},
		{"whitespace only", []byte("  \n\t ")},
		{"nul bytes", []byte("PK\x00\x01\x02 binary payload")},
		{"invalid utf8", []byte{0xff, 0xfe, 0x41, 0x42}},
		{"mostly control characters", []byte("\x01\x02\x03\x04\x05\x06\x07\x08ab")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.ExtractText(ctx, "doc.bin", tt.data); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
