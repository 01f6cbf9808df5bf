package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeResponder struct {
	replies map[string]string
	calls   int
}

func (f *fakeResponder) HandleMessage(_ context.Context, userID, text string) string {
	f.calls++
	if r, ok := f.replies[text]; ok {
		return r
	}
	return "reply to " + text
}

type fakeReplier struct {
	tokens []string
	texts  []string
}

func (f *fakeReplier) Reply(_ context.Context, replyToken, text string) error {
	f.tokens = append(f.tokens, replyToken)
	f.texts = append(f.texts, text)
	return nil
}

type fakeChatLog struct {
	entries []string
}

func (f *fakeChatLog) SaveChat(userID, userMessage, botResponse string) error {
	f.entries = append(f.entries, userID+"|"+userMessage+"|"+botResponse)
	return nil
}

const testSecret = "channel-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, w *Webhook, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/callback", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	return rec
}

const textEventBody = `{"events":[{"type":"message","replyToken":"tok-1","source":{"userId":"u1"},"message":{"type":"text","text":"สวัสดี"}}]}`

func TestWebhook_ValidEvent(t *testing.T) {
	responder := &fakeResponder{replies: map[string]string{"สวัสดี": "สวัสดีค่ะ"}}
	replier := &fakeReplier{}
	chats := &fakeChatLog{}
	w := NewWebhook(testSecret, responder, replier, chats)

	rec := postWebhook(t, w, textEventBody, sign(textEventBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if len(replier.tokens) != 1 || replier.tokens[0] != "tok-1" {
		t.Errorf("reply tokens: %v", replier.tokens)
	}
	if replier.texts[0] != "สวัสดีค่ะ" {
		t.Errorf("reply text: %q", replier.texts[0])
	}
	if len(chats.entries) != 1 || chats.entries[0] != "u1|สวัสดี|สวัสดีค่ะ" {
		t.Errorf("chat log: %v", chats.entries)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	responder := &fakeResponder{}
	w := NewWebhook(testSecret, responder, &fakeReplier{}, &fakeChatLog{})

	rec := postWebhook(t, w, textEventBody, sign(textEventBody+"tampered"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
	if responder.calls != 0 {
		t.Errorf("responder invoked despite bad signature")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	w := NewWebhook(testSecret, &fakeResponder{}, &fakeReplier{}, &fakeChatLog{})
	rec := postWebhook(t, w, textEventBody, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestWebhook_IgnoresNonTextEvents(t *testing.T) {
	body := `{"events":[{"type":"message","replyToken":"tok-1","source":{"userId":"u1"},"message":{"type":"image"}},{"type":"follow","source":{"userId":"u2"}}]}`
	responder := &fakeResponder{}
	replier := &fakeReplier{}
	w := NewWebhook(testSecret, responder, replier, &fakeChatLog{})

	rec := postWebhook(t, w, body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if responder.calls != 0 || len(replier.tokens) != 0 {
		t.Errorf("non-text events were processed")
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	body := `{not json`
	w := NewWebhook(testSecret, &fakeResponder{}, &fakeReplier{}, &fakeChatLog{})
	rec := postWebhook(t, w, body, sign(body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestWebhook_MultipleEvents(t *testing.T) {
	body := `{"events":[` +
		`{"type":"message","replyToken":"tok-1","source":{"userId":"u1"},"message":{"type":"text","text":"one"}},` +
		`{"type":"message","replyToken":"tok-2","source":{"userId":"u2"},"message":{"type":"text","text":"two"}}]}`
	replier := &fakeReplier{}
	w := NewWebhook(testSecret, &fakeResponder{}, replier, &fakeChatLog{})

	postWebhook(t, w, body, sign(body))
	if len(replier.tokens) != 2 || replier.tokens[1] != "tok-2" {
		t.Errorf("tokens: %v", replier.tokens)
	}
}
