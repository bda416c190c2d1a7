package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestWebhook_Send tests status code classification against a stub server.
func TestWebhook_Send(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantTransient bool
		wantPermanent bool
	}{
		{
			name:    "ok",
			status:  http.StatusOK,
			wantErr: false,
		},
		{
			name:    "accepted",
			status:  http.StatusAccepted,
			wantErr: false,
		},
		{
			name:          "request timeout",
			status:        http.StatusRequestTimeout,
			wantErr:       true,
			wantTransient: true,
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			wantErr:       true,
			wantTransient: true,
		},
		{
			name:          "bad gateway",
			status:        http.StatusBadGateway,
			wantErr:       true,
			wantTransient: true,
		},
		{
			name:          "not found",
			status:        http.StatusNotFound,
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Message
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			wh := NewWebhook(server.URL)
			msg := Message{
				DedupKey:  "abc",
				AlertType: "LOW_STOCK",
				Text:      "Low Stock: Winter Jacket remaining=3 last_sale=Berlin_01 2024-01-15T14:30:00Z",
			}
			err := wh.Send(context.Background(), msg)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantTransient && !IsTransient(err) {
				t.Errorf("Send() error = %v, want transient", err)
			}
			if tt.wantPermanent && !IsPermanent(err) {
				t.Errorf("Send() error = %v, want permanent", err)
			}
			if !tt.wantErr && got != msg {
				t.Errorf("webhook received %+v, want %+v", got, msg)
			}
		})
	}
}

// TestWebhook_Send_InvalidURL verifies a malformed URL fails permanently
// without a network call.
func TestWebhook_Send_InvalidURL(t *testing.T) {
	wh := NewWebhook("not-a-url")
	err := wh.Send(context.Background(), Message{Text: "x"})
	if err == nil {
		t.Fatal("Send() error = nil, want invalid URL error")
	}
	if !IsPermanent(err) {
		t.Errorf("Send() error = %v, want permanent", err)
	}
}

// TestIsValidURL tests the URL prefix check.
func TestIsValidURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/hook", true},
		{"http://localhost:8080", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidURL(tt.url); got != tt.want {
			t.Errorf("IsValidURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

// TestErrorWrapping verifies transient and permanent wrappers survive
// fmt.Errorf chains.
func TestErrorWrapping(t *testing.T) {
	base := Transient(context.DeadlineExceeded)
	if !IsTransient(base) {
		t.Error("IsTransient() = false for a transient error")
	}
	if IsPermanent(base) {
		t.Error("IsPermanent() = true for a transient error")
	}
	if IsTransient(nil) || IsPermanent(nil) {
		t.Error("nil error classified as transient or permanent")
	}
}
