package analyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func TestClientAnalyze(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse(
			`{"document_type":"invoice","fields":{"total":"12.50"},"confidence":0.87}`)))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model", Timeout: 5 * time.Second})
	result, err := c.Analyze(context.Background(), "invoice", "Invoice Number INV-42")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("model = %v", gotBody["model"])
	}

	if result.DocumentType != "invoice" {
		t.Errorf("document type = %q", result.DocumentType)
	}
	if result.Confidence != 0.87 {
		t.Errorf("confidence = %v", result.Confidence)
	}
	if !strings.Contains(string(result.Fields), "12.50") {
		t.Errorf("fields = %s", result.Fields)
	}
}

func TestClientAnalyzeRejectsInvalidAnswers(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "here is your invoice data: total 12.50"},
		{"missing fields", `{"document_type":"invoice","confidence":0.5}`},
		{"confidence out of range", `{"document_type":"invoice","fields":{},"confidence":1.5}`},
		{"empty document type", `{"document_type":"","fields":{},"confidence":0.5}`},
		{"extra keys", `{"document_type":"invoice","fields":{},"confidence":0.5,"reasoning":"..."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(completionResponse(tt.content)))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
			if _, err := c.Analyze(context.Background(), "invoice", "text"); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestClientAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Analyze(context.Background(), "invoice", "text")
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestClientAnalyzeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if _, err := c.Analyze(context.Background(), "invoice", "text"); err == nil {
		t.Error("expected an error for an empty choices list")
	}
}
