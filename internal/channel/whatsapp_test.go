package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func textPayload(from, body string) []byte {
	return []byte(`{
		"entry":[{"changes":[{"value":{"messages":[
			{"from":"` + from + `","type":"text","text":{"body":"` + body + `"}}
		]}}]}]
	}`)
}

func TestParseWebhookText(t *testing.T) {
	t.Parallel()

	inbound, err := ParseWebhook(textPayload("+5491122223333", "hola"))
	if err != nil {
		t.Fatalf("ParseWebhook failed: %v", err)
	}
	if inbound.SenderPhone != "+5491122223333" {
		t.Fatalf("unexpected sender: %q", inbound.SenderPhone)
	}
	if inbound.Type != MessageTypeText || inbound.Text != "hola" {
		t.Fatalf("unexpected message: %+v", inbound)
	}
}

func TestParseWebhookAudio(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"entry":[{"changes":[{"value":{"messages":[
			{"from":"+111","type":"audio","audio":{"id":"media-42"}}
		]}}]}]
	}`)
	inbound, err := ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook failed: %v", err)
	}
	if inbound.Type != MessageTypeAudio || inbound.MediaID != "media-42" {
		t.Fatalf("unexpected message: %+v", inbound)
	}
}

func TestParseWebhookNoMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"empty object", `{}`},
		{"status-only delivery", `{"entry":[{"changes":[{"value":{}}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseWebhook([]byte(tt.payload))
			if !errors.Is(err, ErrNoMessage) {
				t.Fatalf("expected ErrNoMessage, got %v", err)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	w := NewWhatsApp(Config{VerifyToken: "secret-token"}, nil)
	body := []byte(`{"entry":[]}`)

	mac := hmac.New(sha256.New, []byte("secret-token"))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !w.VerifySignature(valid, body) {
		t.Fatal("expected valid signature to verify")
	}
	if w.VerifySignature("sha256=deadbeef", body) {
		t.Fatal("expected tampered signature to fail")
	}
	if w.VerifySignature("", body) {
		t.Fatal("expected missing signature to fail")
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode outbound message: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	w := NewWhatsApp(Config{
		AccessToken:   "access-token",
		PhoneNumberID: "611468238715975",
		BaseURL:       srv.URL,
	}, nil)

	if err := w.SendMessage(context.Background(), "+5491122223333", "tu factura está lista"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if gotPath != "/611468238715975/messages" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer access-token" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotBody["to"] != "+5491122223333" {
		t.Fatalf("unexpected recipient: %v", gotBody["to"])
	}
	if gotBody["messaging_product"] != "whatsapp" {
		t.Fatalf("unexpected messaging product: %v", gotBody["messaging_product"])
	}
}

func TestDownloadMedia(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media-42" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/ogg")
		if _, err := w.Write([]byte("ogg-bytes")); err != nil {
			t.Errorf("write media: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	w := NewWhatsApp(Config{AccessToken: "tok", BaseURL: srv.URL}, nil)

	data, contentType, err := w.DownloadMedia(context.Background(), "media-42")
	if err != nil {
		t.Fatalf("DownloadMedia failed: %v", err)
	}
	if string(data) != "ogg-bytes" {
		t.Fatalf("unexpected media bytes: %q", data)
	}
	if contentType != "audio/ogg" {
		t.Fatalf("unexpected content type: %q", contentType)
	}
}
