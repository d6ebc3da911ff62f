package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/go-telegram/bot"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

// telegramStub records sendMessage calls.
type telegramStub struct {
	mu    sync.Mutex
	texts []string
	chats []string
}

func (s *telegramStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		http.NotFound(w, r)
		return
	}

	var chatID, text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		chatID, _ = body["chat_id"].(string)
		text, _ = body["text"].(string)
	} else {
		_ = r.ParseMultipartForm(1 << 20)
		chatID, text = r.FormValue("chat_id"), r.FormValue("text")
	}

	s.mu.Lock()
	s.chats = append(s.chats, chatID)
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
}

func TestTelegramSinkDeliver(t *testing.T) {
	stub := &telegramStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	sink, err := NewTelegramSink("123:abc", "42", zaptest.NewLogger(t), bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	sig := solana.Signature{1, 2, 3}
	err = sink.Deliver(context.Background(), Notification{
		Tier:      "premium",
		SessionID: uuid.New(),
		State:     mintflow.Confirmed,
		Severity:  SeveritySuccess,
		Message:   MintSucceededMessage,
		Signature: sig,
	})
	require.NoError(t, err)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.texts, 1)
	assert.Equal(t, "42", stub.chats[0])
	assert.Contains(t, stub.texts[0], "[premium] SUCCESS")
	assert.Contains(t, stub.texts[0], MintSucceededMessage)
	assert.Contains(t, stub.texts[0], "tx: ")
}

func TestFormatTextWithoutSignature(t *testing.T) {
	text := FormatText(Notification{Tier: "standard", Severity: SeverityError, Message: "SOLD OUT!"})
	assert.Equal(t, "[standard] ERROR\nSOLD OUT!", text)
}
