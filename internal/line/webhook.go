package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// Responder turns one inbound message into one outbound reply. It never
// fails; degraded answers are the responder's problem.
type Responder interface {
	HandleMessage(ctx context.Context, userID, text string) string
}

// Replier answers a webhook event through its reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// ChatLogger records one completed exchange.
type ChatLogger interface {
	SaveChat(userID, userMessage, botResponse string) error
}

// Webhook receives LINE platform events, verifies their signature, and routes
// text messages into the conversation engine.
type Webhook struct {
	channelSecret []byte
	responder     Responder
	replier       Replier
	chats         ChatLogger
}

func NewWebhook(channelSecret string, responder Responder, replier Replier, chats ChatLogger) *Webhook {
	return &Webhook{
		channelSecret: []byte(channelSecret),
		responder:     responder,
		replier:       replier,
		chats:         chats,
	}
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	if !w.validSignature(body, r.Header.Get("X-Line-Signature")) {
		log.Printf("webhook: rejected request with bad signature")
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("webhook: malformed body: %v", err)
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" || ev.Source.UserID == "" {
			continue
		}
		w.handleText(r.Context(), ev)
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK"))
}

func (w *Webhook) handleText(ctx context.Context, ev webhookEvent) {
	reply := w.responder.HandleMessage(ctx, ev.Source.UserID, ev.Message.Text)
	if err := w.chats.SaveChat(ev.Source.UserID, ev.Message.Text, reply); err != nil {
		log.Printf("webhook: logging chat for %s: %v", ev.Source.UserID, err)
	}
	if err := w.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		log.Printf("webhook: replying to %s: %v", ev.Source.UserID, err)
	}
}

// validSignature checks the X-Line-Signature header: base64 of the HMAC-SHA256
// of the raw body under the channel secret.
func (w *Webhook) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, w.channelSecret)
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
